package rl78bsl

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout               = errors.New("response timeout")
	ErrFormat                = errors.New("malformed response frame")
	ErrChecksum              = errors.New("response checksum error")
	ErrLengthMismatch        = errors.New("unexpected response length")
	ErrPayloadTooLarge       = errors.New("payload too large")
	ErrPayloadEmpty          = errors.New("empty data frame")
	ErrUnsupportedBaud       = errors.New("unsupported baud rate")
	ErrInitializationFailed  = errors.New("bootloader initialization failed")
	ErrSynchronizationFailed = errors.New("bootloader synchronization failed")
	ErrNoDevice              = errors.New("device identity not read")
)

// IOError - transport failure during a read, write or line change
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("serial %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// StatusError - the device answered a command with a non-ACK status
type StatusError struct {
	Command byte
	Status  Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: device returned %v", commandName(e.Command), e.Status)
}

// FrameError - the device rejected the data frame starting at Address
type FrameError struct {
	Address uint32
	Err     error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("data at 0x%06X: %v", e.Address, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// ProgramError - programming a block failed
type ProgramError struct {
	Address uint32
	Err     error
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("program block 0x%06X: %v", e.Address, e.Err)
}

func (e *ProgramError) Unwrap() error {
	return e.Err
}

// MismatchError - flash content differs from the image
type MismatchError struct {
	Address uint32
	Err     error
}

func (e *MismatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("verify block 0x%06X: content mismatch", e.Address)
	}
	return fmt.Sprintf("verify block 0x%06X: %v", e.Address, e.Err)
}

func (e *MismatchError) Unwrap() error {
	return e.Err
}

// BlockError - erase or blank check of a block failed
type BlockError struct {
	Op      string
	Address uint32
	Err     error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%s block 0x%06X: %v", e.Op, e.Address, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}
