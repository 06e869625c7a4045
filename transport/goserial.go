package transport

import (
	"github.com/albenik/go-serial/v2"
)

// goSerialPort - Port backed by github.com/albenik/go-serial/v2
type goSerialPort struct {
	conn   *serial.Port
	brk    breakLine
	wiring Wiring
}

func openGoSerial(name string, cfg Config) (*goSerialPort, error) {
	conn, err := serial.Open(
		name,
		serial.WithBaudrate(cfg.BaudRate),
		serial.WithDataBits(8),
		serial.WithParity(serial.NoParity),
		serial.WithStopBits(serial.TwoStopBits),
		serial.WithReadTimeout(int(cfg.ReadTimeout.Milliseconds())),
		serial.WithHUPCL(false),
	)
	if err != nil {
		return nil, err
	}

	brk, err := openBreakLine(name, cfg.Wiring)
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := &goSerialPort{conn: conn, brk: brk, wiring: cfg.Wiring}
	if err := p.Flush(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *goSerialPort) Read(b []byte) (int, error) {
	return p.conn.Read(b)
}

func (p *goSerialPort) Write(b []byte) (int, error) {
	return writeFull(p.conn, b)
}

func (p *goSerialPort) SetBaudRate(baud int) error {
	return p.conn.Reconfigure(
		serial.WithBaudrate(baud),
	)
}

func (p *goSerialPort) SetParity(enabled bool, odd bool) error {
	parity := serial.NoParity
	if enabled {
		parity = serial.EvenParity
		if odd {
			parity = serial.OddParity
		}
	}
	return p.conn.Reconfigure(
		serial.WithParity(parity),
	)
}

func (p *goSerialPort) SetLine(line Line, level bool) error {
	return setLine(p.conn, p.brk, p.wiring, line, level)
}

// Flush - Discards everything received but not read yet
func (p *goSerialPort) Flush() error {
	return p.conn.ResetInputBuffer()
}

func (p *goSerialPort) Close() error {
	err := closeBreakLine(p.brk)
	if cerr := p.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
