package memory

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// LoadSRecord - Decodes Motorola S-record data (S1/S2/S3 data records with
// 16, 24 and 32 bit addresses). Header and count records are skipped, the
// termination record sets the start address.
func LoadSRecord(r io.Reader) (*Memory, error) {
	mem := New()

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := parseSRecord(mem, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return mem, nil
}

func parseSRecord(mem *Memory, line string) error {
	if len(line) < 4 || (line[0] != 'S' && line[0] != 's') {
		return ErrRecordFormat
	}

	record := line[1]
	raw, err := hex.DecodeString(line[2:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordFormat, err)
	}

	// count covers address, data and checksum
	if int(raw[0]) != len(raw)-1 {
		return fmt.Errorf("%w: byte count %d, got %d bytes", ErrRecordFormat, raw[0], len(raw)-1)
	}

	sum := byte(0)
	for _, b := range raw {
		sum += b
	}
	if sum != 0xFF {
		return fmt.Errorf("%w: checksum error", ErrRecordFormat)
	}

	var addrLen int
	switch record {
	case '0', '5', '6':
		return nil
	case '1', '9':
		addrLen = 2
	case '2', '8':
		addrLen = 3
	case '3', '7':
		addrLen = 4
	default:
		return fmt.Errorf("%w: unknown record type S%c", ErrRecordFormat, record)
	}

	if len(raw) < 1+addrLen+1 {
		return fmt.Errorf("%w: record too short", ErrRecordFormat)
	}

	addrBytes := make([]byte, 4)
	copy(addrBytes[4-addrLen:], raw[1:1+addrLen])
	address := binary.BigEndian.Uint32(addrBytes)

	switch record {
	case '7', '8', '9':
		mem.setEntry(address)
		return nil
	}

	data := raw[1+addrLen : len(raw)-1]
	if len(data) == 0 {
		return nil
	}
	return mem.AddBinary(address, data)
}
