package rl78bsl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BaudInfo - Reply of the baud rate set command
type BaudInfo struct {
	FrequencyMHz int
	WideVoltage  bool
}

// sendCommand transmits a command frame.
func (b *Instance) sendCommand(cmd byte, payload []byte) error {
	frame, err := EncodeCommand(cmd, payload)
	if err != nil {
		return err
	}

	b.log.Debug("send command", "command", commandName(cmd), "payload", fmt.Sprintf("% X", payload))
	return b.Send(frame)
}

// sendData transmits one data frame.
func (b *Instance) sendData(payload []byte, last bool) error {
	frame, err := EncodeData(payload, last)
	if err != nil {
		return err
	}
	return b.Send(frame)
}

// recv reads a response frame of expected payload length. Framing errors
// leave the link out of step, so pending input is dropped.
func (b *Instance) recv(cmd byte, expected int) ([]byte, error) {
	data, err := DecodeResponse(linkReader{b}, expected)

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		statusErr.Command = cmd
		return nil, statusErr
	}
	if errors.Is(err, ErrFormat) || errors.Is(err, ErrLengthMismatch) {
		b.Flush()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", commandName(cmd), err)
	}
	return data, nil
}

// recvStatus reads a response and requires its leading status to be ACK.
func (b *Instance) recvStatus(cmd byte, expected int) ([]byte, error) {
	data, err := b.recv(cmd, expected)
	if err != nil {
		return nil, err
	}

	if Status(data[0]) != StatusACK {
		return nil, &StatusError{Command: cmd, Status: Status(data[0])}
	}
	return data, nil
}

// exchange sends a command and reads its status response.
func (b *Instance) exchange(cmd byte, payload []byte, expected int) ([]byte, error) {
	if err := b.sendCommand(cmd, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", commandName(cmd), err)
	}
	return b.recvStatus(cmd, expected)
}

// CmdReset - Checks that the bootloader accepts commands
func (b *Instance) CmdReset() error {
	_, err := b.exchange(CmdReset, nil, 1)
	return err
}

// CmdBaudRateSet - Selects the link baud rate and the supply voltage in mV.
// The caller switches the local port to baud after success.
func (b *Instance) CmdBaudRateSet(baud int, millivolts int) (BaudInfo, error) {
	code, ok := baudCodes[baud]
	if !ok {
		return BaudInfo{}, fmt.Errorf("%w: %d", ErrUnsupportedBaud, baud)
	}

	data, err := b.exchange(CmdBaudRateSet, []byte{code, byte(millivolts / 100)}, 3)
	if err != nil {
		return BaudInfo{}, err
	}

	return BaudInfo{
		FrequencyMHz: int(data[1]),
		WideVoltage:  data[2] != 0,
	}, nil
}

// CmdSiliconSignature - Reads the device identity. The result is also kept
// by the instance for the block operations.
func (b *Instance) CmdSiliconSignature() (*DeviceInfo, error) {
	if _, err := b.exchange(CmdSiliconSignature, nil, 1); err != nil {
		return nil, err
	}

	data, err := b.recv(CmdSiliconSignature, constSignatureLength)
	if err != nil {
		return nil, err
	}

	info := parseSignature(data, b.cfg.protocol)
	b.device = info
	b.log.Debug("silicon signature",
		"device", info.Name,
		"code_size", info.CodeSize,
		"data_size", info.DataSize,
		"firmware", info.FirmwareVersion(),
	)
	return info, nil
}

// CmdBlockErase - Erases the block starting at address
func (b *Instance) CmdBlockErase(address uint32) error {
	payload := make([]byte, 3)
	putAddr(payload, address)

	_, err := b.exchange(CmdBlockErase, payload, 1)
	return err
}

// CmdBlockBlankCheck - Reports whether start..end (inclusive) holds any
// programmed byte. A blank error status is the "not blank" answer.
func (b *Instance) CmdBlockBlankCheck(start, end uint32) (bool, error) {
	if err := b.sendCommand(CmdBlockBlankCheck, rangePayload(start, end, 0x00)); err != nil {
		return false, fmt.Errorf("%s: %w", commandName(CmdBlockBlankCheck), err)
	}

	data, err := b.recv(CmdBlockBlankCheck, 1)
	if err != nil {
		return false, err
	}

	switch Status(data[0]) {
	case StatusACK:
		return false, nil
	case StatusBlankError:
		return true, nil
	}
	return false, &StatusError{Command: CmdBlockBlankCheck, Status: Status(data[0])}
}

// CmdChecksum - Reads the device checksum of start..end (inclusive)
func (b *Instance) CmdChecksum(start, end uint32) (uint16, error) {
	if _, err := b.exchange(CmdChecksum, rangePayload(start, end), 1); err != nil {
		return 0, err
	}

	data, err := b.recv(CmdChecksum, 2)
	if err != nil {
		return 0, err
	}

	return uint16(data[0]) | uint16(data[1])<<8, nil
}

// CmdProgramming - Writes rom to start..end. The range must be erased.
func (b *Instance) CmdProgramming(start, end uint32, rom []byte) error {
	if err := b.checkRange(start, end, rom); err != nil {
		return err
	}

	if _, err := b.exchange(CmdProgramming, rangePayload(start, end), 1); err != nil {
		return err
	}

	if err := b.streamData(CmdProgramming, start, rom, 0); err != nil {
		return err
	}

	b.Sleep(b.cfg.timing.programDelay(len(rom)))

	_, err := b.recvStatus(CmdProgramming, 1)
	return err
}

// CmdVerify - Lets the device compare start..end with rom
func (b *Instance) CmdVerify(start, end uint32, rom []byte) error {
	if err := b.checkRange(start, end, rom); err != nil {
		return err
	}

	if _, err := b.exchange(CmdVerify, rangePayload(start, end), 1); err != nil {
		return err
	}

	return b.streamData(CmdVerify, start, rom, b.cfg.timing.VerifyFrame)
}

func (b *Instance) checkRange(start, end uint32, rom []byte) error {
	if end < start || uint64(end-start)+1 != uint64(len(rom)) {
		return fmt.Errorf("range 0x%06X..0x%06X does not match %d data bytes", start, end, len(rom))
	}
	return nil
}

// streamData sends rom in frames of up to 256 bytes. Every frame is answered
// with [status, result], both must be ACK. delay precedes each answer. A
// rejected frame is reported as *FrameError.
func (b *Instance) streamData(cmd byte, address uint32, rom []byte, delay time.Duration) error {
	for len(rom) > 0 {
		n := len(rom)
		if n > constMaxDataPayload {
			n = constMaxDataPayload
		}
		last := n == len(rom)

		b.log.Log(context.Background(), LevelTrace, "send data", "address", fmt.Sprintf("0x%06X", address), "last", last)
		if err := b.sendData(rom[:n], last); err != nil {
			return fmt.Errorf("%s: %w", commandName(cmd), err)
		}

		b.Sleep(delay)

		data, err := b.recvStatus(cmd, 2)
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return &FrameError{Address: address, Err: err}
		}
		if err != nil {
			return err
		}
		if Status(data[1]) != StatusACK {
			return &FrameError{Address: address, Err: &StatusError{Command: cmd, Status: Status(data[1])}}
		}

		rom = rom[n:]
		address += uint32(n)
	}

	return nil
}
