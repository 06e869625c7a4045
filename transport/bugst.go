package transport

import (
	"go.bug.st/serial"
)

// bugSTPort - Port backed by go.bug.st/serial. The mode is kept locally
// because the library only reconfigures a port with a complete Mode.
type bugSTPort struct {
	conn   serial.Port
	mode   serial.Mode
	brk    breakLine
	wiring Wiring
}

func openBugST(name string, cfg Config) (*bugSTPort, error) {
	mode := serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}

	conn, err := serial.Open(name, &mode)
	if err != nil {
		return nil, err
	}

	var brk breakLine
	err = conn.SetReadTimeout(cfg.ReadTimeout)
	if err == nil {
		err = conn.ResetInputBuffer()
	}
	if err == nil {
		brk, err = openBreakLine(name, cfg.Wiring)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &bugSTPort{conn: conn, mode: mode, brk: brk, wiring: cfg.Wiring}, nil
}

func (p *bugSTPort) Read(b []byte) (int, error) {
	return p.conn.Read(b)
}

func (p *bugSTPort) Write(b []byte) (int, error) {
	return writeFull(p.conn, b)
}

func (p *bugSTPort) SetBaudRate(baud int) error {
	mode := p.mode
	mode.BaudRate = baud
	if err := p.conn.SetMode(&mode); err != nil {
		return err
	}
	p.mode = mode
	return nil
}

func (p *bugSTPort) SetParity(enabled bool, odd bool) error {
	mode := p.mode
	mode.Parity = serial.NoParity
	if enabled {
		mode.Parity = serial.EvenParity
		if odd {
			mode.Parity = serial.OddParity
		}
	}
	if err := p.conn.SetMode(&mode); err != nil {
		return err
	}
	p.mode = mode
	return nil
}

func (p *bugSTPort) SetLine(line Line, level bool) error {
	return setLine(p.conn, p.brk, p.wiring, line, level)
}

func (p *bugSTPort) Flush() error {
	return p.conn.ResetInputBuffer()
}

func (p *bugSTPort) Close() error {
	err := closeBreakLine(p.brk)
	if cerr := p.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
