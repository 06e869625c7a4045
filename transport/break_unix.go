//go:build linux || darwin

package transport

import (
	"golang.org/x/sys/unix"
)

// ttyBreak - Second handle of the tty used for TIOCSBRK/TIOCCBRK. Break
// state belongs to the line, so it does not matter which handle sets it.
type ttyBreak struct {
	fd int
}

func openBreak(name string) (breakLine, error) {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	return &ttyBreak{fd: fd}, nil
}

func (b *ttyBreak) SetBreak(on bool) error {
	req := uint(unix.TIOCCBRK)
	if on {
		req = unix.TIOCSBRK
	}
	return unix.IoctlSetInt(b.fd, req, 0)
}

func (b *ttyBreak) Close() error {
	return unix.Close(b.fd)
}
