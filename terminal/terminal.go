package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"
)

// CtrlC ends the terminal session.
const CtrlC = 0x03

// Terminal - Passes keyboard input to the target and prints what the target
// sends, each line prefixed with the time it started
type Terminal struct {
	port    io.ReadWriter
	out     io.Writer
	now     func() time.Time
	onStart func() error
}

// New - Terminal on port printing to out. port.Read must return (0, nil)
// after its read timeout when nothing arrives.
func New(port io.ReadWriter, out io.Writer) *Terminal {
	return &Terminal{
		port: port,
		out:  out,
		now:  time.Now,
	}
}

// OnStart - fn runs once the receiver is listening, before any input is
// forwarded. Used to reset the target so its boot output is not lost.
func (t *Terminal) OnStart(fn func() error) {
	t.onStart = fn
}

// Run - Forwards in to the port until Ctrl-C or end of input. The receiver
// goroutine is stopped and joined before Run returns.
func (t *Terminal) Run(in io.Reader) error {
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- t.receive(stop)
	}()

	var err error
	if t.onStart != nil {
		err = t.onStart()
	}
	if err == nil {
		err = t.transmit(in)
	}
	close(stop)

	if rxErr := <-done; err == nil {
		err = rxErr
	}
	return err
}

// transmit forwards input to the port up to Ctrl-C or end of input.
func (t *Terminal) transmit(in io.Reader) error {
	buffer := make([]byte, 100)

	for {
		n, err := in.Read(buffer)

		for i := 0; i < n; i++ {
			if buffer[i] == CtrlC {
				return t.send(buffer[:i])
			}
		}
		if n > 0 {
			if err := t.send(buffer[:n]); err != nil {
				return err
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (t *Terminal) send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, err := t.port.Write(data)
	return err
}

// receive prints what the port delivers until stop is closed.
func (t *Terminal) receive(stop <-chan struct{}) error {
	out := bufio.NewWriter(t.out)
	defer out.Flush()

	buffer := make([]byte, 100)
	prev := byte('\n')

	// read at least once so a dead port is reported even after a short session
	for {
		n, err := t.port.Read(buffer)
		if err != nil {
			return err
		}

		for _, c := range buffer[:n] {
			if prev == '\n' && c != '\n' {
				now := t.now()
				fmt.Fprintf(out, "[%d.%06d] ", now.Unix(), now.Nanosecond()/1000)
			}
			out.WriteByte(c)
			prev = c
		}

		if n > 0 {
			if err := out.Flush(); err != nil {
				return err
			}
		}

		select {
		case <-stop:
			return nil
		default:
		}
	}
}
