package memory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marcinbor85/gohex"
)

// ErasedByte is the content of an erased flash cell.
const ErasedByte = 0xFF

var (
	ErrUnknownFormat = errors.New("unknown image file format")
	ErrRecordFormat  = errors.New("malformed record")
)

// OutOfRangeError - image data lies outside of every flash region
type OutOfRangeError struct {
	Address uint32
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("image data at address 0x%06X is outside of flash memory", e.Address)
}

// Memory - Decoded content of a firmware image file
type Memory struct {
	*gohex.Memory

	entry    uint32
	hasEntry bool
}

// New - Empty memory
func New() *Memory {
	return &Memory{Memory: gohex.NewMemory()}
}

// Entry - Start address from the image termination record, if any
func (m *Memory) Entry() (uint32, bool) {
	return m.entry, m.hasEntry
}

func (m *Memory) setEntry(addr uint32) {
	m.entry = addr
	m.hasEntry = true
}

// Range - Returns the memory content between fromAddr and toAddr (both
// inclusive). Undefined bytes are filled with 0xFF.
func (m *Memory) Range(fromAddr uint32, toAddr uint32) []byte {
	if toAddr < fromAddr {
		return []byte{}
	}

	r := NewRegion(fromAddr, toAddr-fromAddr+1)
	for _, seg := range m.GetDataSegments() {
		segEnd := uint64(seg.Address) + uint64(len(seg.Data))
		if segEnd <= uint64(r.Address) || seg.Address > toAddr {
			continue
		}

		data := seg.Data
		offset := uint32(0)
		if seg.Address < r.Address {
			data = data[r.Address-seg.Address:]
		} else {
			offset = seg.Address - r.Address
		}
		copy(r.Data[offset:], data)
	}

	return r.Data
}

// Fill copies the memory content into the given regions. Bytes that fall
// outside of every region are reported as *OutOfRangeError.
func (m *Memory) Fill(regions ...*Region) error {
	for _, seg := range m.GetDataSegments() {
		addr := seg.Address
		data := seg.Data

		for len(data) > 0 {
			r := findRegion(regions, addr)
			if r == nil {
				return &OutOfRangeError{Address: addr}
			}

			offset := addr - r.Address
			n := copy(r.Data[offset:], data)
			data = data[n:]
			addr += uint32(n)
		}
	}

	return nil
}

func findRegion(regions []*Region, addr uint32) *Region {
	for _, r := range regions {
		if r != nil && r.Contains(addr) {
			return r
		}
	}
	return nil
}

// LoadFile - Loads an image file, Motorola S-record or Intel HEX, picking the
// decoder from the first record character.
func LoadFile(path string) (*Memory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer file.Close()

	r := bufio.NewReader(file)
	for {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
			}
			return nil, err
		}

		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case ':':
			r.UnreadByte()
			return ParseIntelHex(r)
		case 'S', 's':
			r.UnreadByte()
			return LoadSRecord(r)
		}
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

// ParseIntelHex - Decodes Intel HEX records
func ParseIntelHex(r io.Reader) (*Memory, error) {
	mem := gohex.NewMemory()
	err := mem.ParseIntelHex(r)
	if err != nil {
		return nil, err
	}

	return &Memory{Memory: mem}, nil
}
