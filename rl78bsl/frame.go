package rl78bsl

import (
	"fmt"
	"io"
)

// Checksum - Frame checksum: the negated byte sum, low 8 bits
func Checksum(data []byte) byte {
	sum := byte(0)
	for _, b := range data {
		sum -= b
	}
	return sum
}

// ImageChecksum - Value the checksum command returns for rom: the negated
// byte sum, low 16 bits
func ImageChecksum(rom []byte) uint16 {
	sum := uint16(0)
	for _, b := range rom {
		sum -= uint16(b)
	}
	return sum
}

// EncodeCommand - Builds a command frame
// [SOH, len, op, payload..., checksum, ETX] where len counts op and payload.
func EncodeCommand(op byte, payload []byte) ([]byte, error) {
	if len(payload) > constMaxCommandPayload {
		return nil, fmt.Errorf("%w: command payload of %d bytes", ErrPayloadTooLarge, len(payload))
	}

	frame := make([]byte, 0, len(payload)+5)
	frame = append(frame, constSOH, byte(len(payload)+1), op)
	frame = append(frame, payload...)
	frame = append(frame, Checksum(frame[1:]), constETX)

	return frame, nil
}

// EncodeData - Builds a data frame [STX, len, payload..., checksum, ETX|ETB].
// A 256 byte payload is sent with length 0.
func EncodeData(payload []byte, last bool) ([]byte, error) {
	if len(payload) > constMaxDataPayload {
		return nil, fmt.Errorf("%w: data payload of %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if len(payload) == 0 {
		return nil, ErrPayloadEmpty
	}

	end := byte(constETB)
	if last {
		end = constETX
	}

	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, constSTX, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, Checksum(frame[1:]), end)

	return frame, nil
}

// DecodeResponse - Reads one response frame from r and returns its payload,
// status byte first. expected is the payload length the caller requires.
// A device rejecting a command answers with the status byte alone, which is
// returned as *StatusError with no command set.
func DecodeResponse(r io.Reader, expected int) ([]byte, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != constSTX {
		return nil, fmt.Errorf("%w: start byte 0x%02X", ErrFormat, header[0])
	}

	length := int(header[1])
	if length == 0 {
		length = constMaxDataPayload
	}
	if length > constMaxResponsePayload {
		return nil, fmt.Errorf("%w: response length %d", ErrFormat, length)
	}
	statusOnly := length == 1 && expected > 1
	if length != expected && !statusOnly {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrLengthMismatch, length, expected)
	}

	// payload, checksum, end marker
	rest := make([]byte, length+2)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}

	switch rest[length+1] {
	case constETX, constETB:
	default:
		return nil, fmt.Errorf("%w: end byte 0x%02X", ErrFormat, rest[length+1])
	}

	sum := Checksum(header[1:]) - sumOf(rest[:length])
	if sum != rest[length] {
		return nil, fmt.Errorf("%w: got 0x%02X, expected 0x%02X", ErrChecksum, rest[length], sum)
	}

	if statusOnly {
		if status := Status(rest[0]); status != StatusACK {
			return nil, &StatusError{Status: status}
		}
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrLengthMismatch, length, expected)
	}

	return rest[:length], nil
}

func sumOf(data []byte) byte {
	sum := byte(0)
	for _, b := range data {
		sum += b
	}
	return sum
}
