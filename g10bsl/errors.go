package g10bsl

import (
	"errors"
	"fmt"
)

var ErrInvalidSize = errors.New("image size is not a G10 flash size")

// SizeMismatchError - the device reports a different flash size than the
// image has
type SizeMismatchError struct {
	Code     byte
	Reported uint32
	Expected uint32
}

func (e *SizeMismatchError) Error() string {
	if e.Reported == 0 {
		return fmt.Sprintf("unknown flash size code 0x%02X, expected %d bytes", e.Code, e.Expected)
	}
	return fmt.Sprintf("unexpected flash size %d, expected %d", e.Reported, e.Expected)
}

// ChecksumMismatchError - the flash CRC differs from the image CRC
type ChecksumMismatchError struct {
	Remote uint16
	Local  uint16
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("CRC don't match (remote: %04Xh, local: %04Xh)", e.Remote, e.Local)
}
