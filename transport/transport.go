// Package transport provides the serial byte channel used to talk to the
// RL78 bootloader: raw reads and writes, baud rate and parity changes, and the
// two control signals (RESET and TOOL0) driven through modem control lines or
// a break condition on TxD.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Line selects one of the two control signals of the programming interface.
type Line int

const (
	// LineReset drives the target RESET pin.
	LineReset Line = iota
	// LineClock drives the target TOOL0 pin.
	LineClock
)

func (l Line) String() string {
	switch l {
	case LineReset:
		return "reset"
	case LineClock:
		return "clock"
	}
	return fmt.Sprintf("line(%d)", int(l))
}

// Port is the byte transport consumed by the protocol engine.
//
// Read returns (0, nil) when no data arrived within the port read timeout.
// Write either writes everything or returns an error.
type Port interface {
	io.ReadWriter
	SetBaudRate(baud int) error
	SetParity(enabled bool, odd bool) error
	SetLine(line Line, level bool) error
	Flush() error
	Close() error
}

// Drivers
const (
	DriverGoSerial = "go-serial"
	DriverBugST    = "bug.st"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

var (
	ErrUnknownDriver    = errors.New("unknown serial driver")
	ErrBreakUnsupported = errors.New("break control of TxD is not supported on this platform")
)

// Wiring describes how the programming adapter is connected to the target.
type Wiring struct {
	// ResetOnRTS routes RESET to RTS and TOOL0 to DTR. Otherwise RESET is
	// on DTR and TOOL0 on RTS.
	ResetOnRTS bool
	// TwoWire is set when TxD and RxD are separate wires, so the adapter
	// does not read back its own transmission.
	TwoWire bool
	// ToolOnBreak drives TOOL0 through TxD: a break condition pulls it low.
	// RESET stays on the modem line selected by ResetOnRTS.
	ToolOnBreak bool
}

// Echoes reports whether every transmitted byte is received back.
func (w Wiring) Echoes() bool {
	return !w.TwoWire
}

// ParseMode - Converts the numeric communication mode of the command line
// (1 single-wire/DTR, 2 two-wire/DTR, 3 single-wire/RTS, 4 two-wire/RTS).
func ParseMode(mode int) (Wiring, error) {
	if mode < 1 || mode > 4 {
		return Wiring{}, fmt.Errorf("communication mode %d out of range 1..4", mode)
	}
	mode--
	return Wiring{
		ResetOnRTS: mode&2 != 0,
		TwoWire:    mode&1 != 0,
	}, nil
}

// ParseG10Mode - RL78/G10 parts only support the single-wire interface with
// TOOL0 on TxD (1 reset by DTR, 2 reset by RTS).
func ParseG10Mode(mode int) (Wiring, error) {
	if mode < 1 || mode > 2 {
		return Wiring{}, fmt.Errorf("communication mode %d out of range 1..2", mode)
	}
	return Wiring{ResetOnRTS: mode == 2, ToolOnBreak: true}, nil
}

// Config selects the backend and the initial line settings.
type Config struct {
	Driver      string
	Wiring      Wiring
	BaudRate    int
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings the bootloader expects right after
// reset: 115200 baud, 8 data bits, 2 stop bits, no parity.
func DefaultConfig() Config {
	return Config{
		Driver:      DriverGoSerial,
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout,
	}
}

// Open opens the named serial port with the configured backend.
func Open(name string, cfg Config) (Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	switch cfg.Driver {
	case "", DriverGoSerial:
		return openGoSerial(name, cfg)
	case DriverBugST:
		return openBugST(name, cfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}

type modem interface {
	SetDTR(level bool) error
	SetRTS(level bool) error
}

// breakLine holds TxD in a break condition while on.
type breakLine interface {
	SetBreak(on bool) error
	io.Closer
}

// openBreakLine opens the break control of the port when the wiring needs
// it, nil otherwise.
func openBreakLine(name string, w Wiring) (breakLine, error) {
	if !w.ToolOnBreak {
		return nil, nil
	}
	return openBreak(name)
}

// closeBreakLine releases TxD and closes the break control.
func closeBreakLine(brk breakLine) error {
	if brk == nil {
		return nil
	}
	err := brk.SetBreak(false)
	if cerr := brk.Close(); err == nil {
		err = cerr
	}
	return err
}

// setLine maps a logical line level onto the output selected by the wiring.
// Modem outputs of USB-UART bridges are active-low, so a high pin level means
// a deasserted signal. A break holds TxD low.
func setLine(m modem, brk breakLine, w Wiring, line Line, level bool) error {
	if line == LineClock && w.ToolOnBreak {
		if brk == nil {
			return ErrBreakUnsupported
		}
		return brk.SetBreak(!level)
	}

	onRTS := (line == LineReset) == w.ResetOnRTS
	if onRTS {
		return m.SetRTS(!level)
	}
	return m.SetDTR(!level)
}

// writeFull retries short writes until p is sent completely.
func writeFull(w io.Writer, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
