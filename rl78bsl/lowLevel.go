package rl78bsl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/janch32/rl78flash/transport"
)

// Instance - Bootloader session on an open port. The instance owns the port
// for its whole lifetime and is not safe for concurrent use.
type Instance struct {
	port transport.Port
	cfg  config
	log  *slog.Logger

	device *DeviceInfo
}

// New - Creates a bootloader session on port
func New(port transport.Port, opts ...Option) *Instance {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Instance{
		port: port,
		cfg:  cfg,
		log:  cfg.logger,
	}
}

// Logger returns the session logger.
func (b *Instance) Logger() *slog.Logger {
	return b.log
}

// Device returns the identity read by CmdSiliconSignature, or nil.
func (b *Instance) Device() *DeviceInfo {
	return b.device
}

// Sleep - Waits for d using the configured sleep function
func (b *Instance) Sleep(d time.Duration) {
	if d > 0 {
		b.cfg.sleep(d)
	}
}

// Send - Writes raw bytes and discards their echo on single-wire links
func (b *Instance) Send(data []byte) error {
	b.log.Log(context.Background(), LevelTrace, "tx", "data", fmt.Sprintf("% X", data))

	if _, err := b.port.Write(data); err != nil {
		return &IOError{Op: "write", Err: err}
	}

	if !b.cfg.echo {
		return nil
	}

	if _, err := b.Read(len(data)); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	return nil
}

// Read - Reads exactly n bytes within the response timeout
func (b *Instance) Read(n int) ([]byte, error) {
	return b.ReadWithin(n, b.cfg.responseTimeout)
}

// ReadWithin - Reads exactly n bytes, polling the port until timeout elapses
func (b *Instance) ReadWithin(n int, timeout time.Duration) ([]byte, error) {
	buff := make([]byte, n)
	deadline := time.Now().Add(timeout)

	received := 0
	for received < n {
		cnt, err := b.port.Read(buff[received:])
		if err != nil {
			return nil, &IOError{Op: "read", Err: err}
		}

		received += cnt
		if cnt == 0 && time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: received %d of %d bytes", ErrTimeout, received, n)
		}
	}

	b.log.Log(context.Background(), LevelTrace, "rx", "data", fmt.Sprintf("% X", buff))
	return buff, nil
}

// linkReader - io.Reader view of the port for the frame decoder
type linkReader struct {
	b *Instance
}

func (r linkReader) Read(p []byte) (int, error) {
	data, err := r.b.Read(len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, data), nil
}

// Flush - Drops unread input
func (b *Instance) Flush() error {
	if err := b.port.Flush(); err != nil {
		return &IOError{Op: "flush", Err: err}
	}
	return nil
}

// SetLine drives a control line. No delay follows.
func (b *Instance) SetLine(line transport.Line, level bool) error {
	if err := b.port.SetLine(line, level); err != nil {
		return &IOError{Op: "set " + line.String(), Err: err}
	}
	return nil
}

// setRstPin drives the target RESET pin.
func (b *Instance) setRstPin(level bool) error {
	return b.SetLine(transport.LineReset, level)
}

// setToolPin drives the target TOOL0 pin.
func (b *Instance) setToolPin(level bool) error {
	return b.SetLine(transport.LineClock, level)
}

// HoldReset - Pulls RESET and TOOL0 low and, when configured, waits for the
// operator to power the target
func (b *Instance) HoldReset(ctx context.Context) error {
	err := b.setRstPin(false)
	if err == nil {
		err = b.setToolPin(false)
	}
	if err != nil {
		return err
	}

	if b.cfg.operatorReady != nil {
		return b.cfg.operatorReady(ctx)
	}
	return nil
}

// Handshake - Enters the bootloader, switches both sides to baud and
// confirms synchronisation with a reset command
func (b *Instance) Handshake(ctx context.Context, baud int, millivolts int) error {
	if _, ok := baudCodes[baud]; !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaud, baud)
	}

	t := b.cfg.timing
	b.log.Info("entering bootloader", "baud", baud, "voltage", millivolts)

	err := b.HoldReset(ctx)
	if err == nil {
		b.Sleep(t.ResetHold)
		err = b.setRstPin(true)
	}
	if err == nil {
		b.Sleep(t.ToolDelay)
		err = b.setToolPin(true)
	}
	if err == nil {
		b.Sleep(t.ModeSettle)
		err = b.Flush()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	b.log.Debug("send sync byte")
	if err := b.sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}
	b.Sleep(t.ModeSettle)

	info, err := b.CmdBaudRateSet(baud, millivolts)
	if err == nil {
		b.log.Debug("baud rate set", "frequency_mhz", info.FrequencyMHz, "wide_voltage", info.WideVoltage)
		err = b.port.SetBaudRate(baud)
		if err != nil {
			err = &IOError{Op: "set baud rate", Err: err}
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	if err := b.CmdReset(); err != nil {
		return fmt.Errorf("%w: %w", ErrSynchronizationFailed, err)
	}

	return nil
}

// sync sends the mode byte, drops its echo and flushes pending input.
func (b *Instance) sync() error {
	if err := b.Send([]byte{SyncByte}); err != nil {
		return err
	}
	return b.Flush()
}

// ResetAndRun - Releases TOOL0 and pulses RESET so the target starts the
// user program
func (b *Instance) ResetAndRun() error {
	b.log.Info("reset to run mode")

	err := b.setToolPin(true)
	if err == nil {
		err = b.setRstPin(false)
	}
	if err == nil {
		b.Sleep(b.cfg.timing.RunReset)
		err = b.setRstPin(true)
	}
	return err
}
