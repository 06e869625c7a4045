package rl78bsl

import (
	"fmt"
	"time"
)

// Frame markers
const (
	constSOH = 0x01 // command frame start
	constSTX = 0x02 // data frame start
	constETX = 0x03 // last frame
	constETB = 0x17 // more frames follow
)

// Command opcodes
const (
	CmdReset            = 0x00
	CmdBlockErase       = 0x22
	CmdProgramming      = 0x40
	CmdVerify           = 0x13
	CmdBlockBlankCheck  = 0x32
	CmdBaudRateSet      = 0x9A
	CmdSiliconSignature = 0xC0
	CmdChecksum         = 0xB0
)

// SyncByte is sent once after the reset sequence to select single-wire UART mode.
const SyncByte = 0x3A

// Baud rate codes of the baud-rate-set command
const (
	constBaud115200  = 0x00
	constBaud250000  = 0x01
	constBaud500000  = 0x02
	constBaud1000000 = 0x03
)

var baudCodes = map[int]byte{
	115200:  constBaud115200,
	250000:  constBaud250000,
	500000:  constBaud500000,
	1000000: constBaud1000000,
}

// SupportedBaudRates lists the rates accepted by the baud-rate-set command.
var SupportedBaudRates = []int{115200, 250000, 500000, 1000000}

const (
	// CodeFlashAddress is the first code flash address.
	CodeFlashAddress = 0x000000
	// DataFlashAddress is the first data flash address.
	DataFlashAddress = 0x0F1000

	// DefaultVoltage is the supply voltage reported to the bootloader in mV.
	DefaultVoltage = 3300
	MinVoltage     = 1800
	MaxVoltage     = 5500

	constMaxCommandPayload = 255
	constMaxDataPayload    = 256

	// responses are at most 32 bytes including header and trailer
	constMaxResponsePayload = 29

	constSignatureLength = 22
)

// Status - Status byte of a bootloader response
type Status byte

// Status codes
const (
	StatusCommandNumberError Status = 0x04
	StatusParameterError     Status = 0x05
	StatusACK                Status = 0x06
	StatusChecksumError      Status = 0x07
	StatusVerifyError        Status = 0x0F
	StatusProtectError       Status = 0x10
	StatusNACK               Status = 0x15
	StatusEraseError         Status = 0x1A
	StatusBlankError         Status = 0x1B
	StatusWriteError         Status = 0x1C
)

var statusNames = map[Status]string{
	StatusCommandNumberError: "command number error",
	StatusParameterError:     "parameter error",
	StatusACK:                "ACK",
	StatusChecksumError:      "checksum error",
	StatusVerifyError:        "verify error",
	StatusProtectError:       "protect error",
	StatusNACK:               "NACK",
	StatusEraseError:         "erase error",
	StatusBlankError:         "internal verify or blank check error",
	StatusWriteError:         "write error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%s (0x%02X)", name, byte(s))
	}
	return fmt.Sprintf("unknown status 0x%02X", byte(s))
}

var commandNames = map[byte]string{
	CmdReset:            "reset",
	CmdBlockErase:       "block erase",
	CmdProgramming:      "programming",
	CmdVerify:           "verify",
	CmdBlockBlankCheck:  "block blank check",
	CmdBaudRateSet:      "baud rate set",
	CmdSiliconSignature: "silicon signature",
	CmdChecksum:         "checksum",
}

func commandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("command 0x%02X", cmd)
}

// Timing - Delays of the reset and programming sequences
type Timing struct {
	// ResetHold is the time RESET and TOOL0 are held low before release.
	ResetHold time.Duration
	// ToolDelay separates RESET release from TOOL0 release.
	ToolDelay time.Duration
	// ModeSettle follows TOOL0 release and the sync byte.
	ModeSettle time.Duration
	// RunReset is the RESET pulse width when returning to run mode.
	RunReset time.Duration
	// ProgramPerKB is the completion wait per started kilobyte of a
	// programming command.
	ProgramPerKB time.Duration
	// VerifyFrame precedes the response of every verify data frame.
	VerifyFrame time.Duration
}

// DefaultTiming returns the delays required by the RL78 bootloader.
func DefaultTiming() Timing {
	return Timing{
		ResetHold:    time.Millisecond,
		ToolDelay:    10 * time.Microsecond,
		ModeSettle:   time.Millisecond,
		RunReset:     10 * time.Millisecond,
		ProgramPerKB: 1500 * time.Microsecond,
		VerifyFrame:  10 * time.Millisecond,
	}
}

// programDelay is the completion wait for a programming command of n bytes.
func (t Timing) programDelay(n int) time.Duration {
	return time.Duration(n/1024+1) * t.ProgramPerKB
}

func putAddr(b []byte, addr uint32) {
	b[0] = byte(addr)
	b[1] = byte(addr >> 8)
	b[2] = byte(addr >> 16)
}

func getAddr(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// rangePayload encodes a start/end address pair, 3 bytes little-endian each.
func rangePayload(start, end uint32, extra ...byte) []byte {
	b := make([]byte, 6, 6+len(extra))
	putAddr(b[0:], start)
	putAddr(b[3:], end)
	return append(b, extra...)
}
