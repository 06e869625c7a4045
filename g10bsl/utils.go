package g10bsl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	constModeSet    = 0x3A
	constEraseWrite = 0x60
	constCRCCheck   = 0x53

	constACK  = 0x06
	constNACK = 0x15

	constWordSize = 4

	// MinSize and MaxSize bound the flash sizes a G10 part can report.
	MinSize = 512
	MaxSize = 64 * 1024

	// The device answers only after the flash operation finished, one
	// hundred 100 ms polls of the serial port.
	constEraseTimeout = 10 * time.Second
	constCRCTimeout   = 10 * time.Second

	constStepDelay = time.Millisecond

	constProgressChunk = 1024
)

// flash size codes of the erase-write and CRC check replies
var sizeCodes = map[byte]uint32{
	0x01: 512,
	0x03: 1024,
	0x07: 2 * 1024,
	0x0F: 4 * 1024,
	0x1F: 8 * 1024,
	0x3F: 16 * 1024,
	0x7F: 32 * 1024,
	0xFF: 64 * 1024,
}

// SizeFromCode - Flash size for a size code, 0 for an unknown code
func SizeFromCode(code byte) uint32 {
	return sizeCodes[code]
}

// ValidSize reports whether size is a flash size of a G10 part.
func ValidSize(size uint32) bool {
	return size >= MinSize && size <= MaxSize && size&(size-1) == 0
}

// ParseSize - Parses a flash size given in bytes, hexadecimal with 0x prefix
// or kilobytes with a k suffix ("4k")
func ParseSize(s string) (uint32, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	mult := uint64(1)
	if strings.HasSuffix(s, "k") {
		mult = 1024
		s = strings.TrimSuffix(s, "k")
	}

	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid flash size %q", s)
	}

	size := n * mult
	if size > MaxSize || !ValidSize(uint32(size)) {
		return 0, fmt.Errorf("flash size %d is not a power of two between %d and %d", size, MinSize, MaxSize)
	}
	return uint32(size), nil
}

// CRC16 - CRC-16/CCITT (polynomial 0x1021, initial value 0, no reflection)
// as computed by the G10 CRC check command
func CRC16(data []byte) uint16 {
	crc := uint16(0)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
