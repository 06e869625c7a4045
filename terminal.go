package main

import (
	"errors"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/janch32/rl78flash/terminal"
	"github.com/janch32/rl78flash/transport"
)

// runTerminal - Opens a terminal on port at baud. reset, when set, runs once
// the receiver listens.
func runTerminal(port transport.Port, baud int, reset func() error) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("not a terminal")
	}

	if err := port.SetBaudRate(baud); err != nil {
		return err
	}

	// Ctrl-C is handled by the terminal, not as a signal
	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, state)

	t := terminal.New(port, &crlfWriter{w: os.Stdout})
	if reset != nil {
		t.OnStart(reset)
	}
	return t.Run(os.Stdin)
}

// crlfWriter restores the newline translation raw mode turns off.
type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	out := make([]byte, 0, len(p)+8)
	for _, b := range p {
		if b == '\n' {
			out = append(out, '\r')
		}
		out = append(out, b)
	}

	if _, err := c.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
