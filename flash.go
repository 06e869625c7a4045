package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/janch32/rl78flash/memory"
	"github.com/janch32/rl78flash/rl78bsl"
	"github.com/janch32/rl78flash/terminal"
	"github.com/janch32/rl78flash/transport"
)

// flashProgrammer - Flash operations of either bootloader protocol
type flashProgrammer interface {
	Erase(ctx context.Context) error
	Program(ctx context.Context, img *memory.Image) error
	Verify(ctx context.Context, img *memory.Image) error
}

// actions - What a session does, in the order the fields are listed
type actions struct {
	info     bool
	erase    bool
	write    bool
	verify   bool
	reset    bool
	terminal int
}

func (a actions) needsFile() bool {
	return a.write || a.verify
}

func (a actions) needsBootloader() bool {
	return a.info || a.erase || a.write || a.verify
}

func (a actions) empty() bool {
	return !a.needsBootloader() && !a.reset && a.terminal == 0
}

type rl78Flags struct {
	linkFlags
	actions
	auto     bool
	baud     int
	voltage  string
	protocol string
}

func rl78Cmd() *cobra.Command {
	var f rl78Flags

	cmd := &cobra.Command{
		Use:   "rl78flash [flags] <port> [<file>]",
		Short: "Programmer for the RL78 serial bootloader",
		Long: `Rl78flash erases, writes and verifies the flash of RL78 microcontrollers
through the on-chip serial bootloader. The file is a Motorola S-record
or Intel HEX image covering code flash and optionally data flash.

Port defaults to $` + envPort + ` or the first USB-UART bridge found.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRL78(cmd.Context(), &f, args)
		},
	}

	addLinkFlags(cmd, &f.linkFlags, "(1 single-wire/reset DTR, 2 two-wire/reset DTR, 3 single-wire/reset RTS, 4 two-wire/reset RTS)")
	cmd.Flags().BoolVarP(&f.info, "info", "i", false, "Display info about MCU")
	cmd.Flags().BoolVarP(&f.auto, "auto", "a", false, "Auto mode (Erase-Write-Verify-Reset)")
	cmd.Flags().BoolVarP(&f.erase, "erase", "e", false, "Erase memory")
	cmd.Flags().BoolVarP(&f.write, "write", "w", false, "Write memory")
	cmd.Flags().BoolVarP(&f.verify, "verify", "c", false, "Verify memory")
	cmd.Flags().BoolVarP(&f.reset, "reset", "r", false, "Reset MCU (switch to RUN mode)")
	cmd.Flags().IntVarP(&f.baud, "baud", "b", transport.DefaultBaudRate, "Baudrate ("+baudRateList()+")")
	cmd.Flags().StringVarP(&f.voltage, "power", "p", "3.3", "Power supply voltage")
	cmd.Flags().IntVarP(&f.terminal, "terminal", "t", 0, "Start terminal with specified baudrate")
	cmd.Flags().StringVar(&f.protocol, "protocol", "auto", "Bootloader protocol version (auto|A|C|D)")

	return cmd
}

func runRL78(ctx context.Context, f *rl78Flags, args []string) error {
	a := f.actions
	if f.auto {
		a.erase, a.write, a.verify, a.reset = true, true, true, true
	}

	if a.needsFile() && len(args) < 2 {
		return errors.New("file not specified")
	}
	if a.empty() {
		return nil
	}

	mV, err := parseVoltage(f.voltage)
	if err != nil {
		return err
	}
	protocol, err := rl78bsl.ParseProtocol(f.protocol)
	if err != nil {
		return err
	}
	wiring, err := transport.ParseMode(f.mode)
	if err != nil {
		return err
	}

	log := f.logger()
	var img *memory.Image
	var mem *memory.Memory
	if a.needsFile() {
		if mem, err = loadImage(args[1], log); err != nil {
			return err
		}
	}

	name, err := resolvePort(args)
	if err != nil {
		return err
	}
	port, err := openPort(name, f.driver, wiring)
	if err != nil {
		return err
	}
	defer port.Close()

	b := rl78bsl.New(port, append(f.linkOptions(log, wiring), rl78bsl.WithProtocol(protocol))...)

	var opErr error
	if a.needsBootloader() {
		opErr = func() error {
			if err := b.Handshake(ctx, f.baud, mV); err != nil {
				return err
			}

			dev, err := b.CmdSiliconSignature()
			if err != nil {
				return fmt.Errorf("silicon signature read failed: %w", err)
			}
			if a.info {
				printDeviceInfo(os.Stdout, dev)
			}

			if mem != nil {
				img = dev.NewImage()
				if err := img.Load(mem); err != nil {
					return fmt.Errorf("read failed: %w", err)
				}
			}

			return runActions(ctx, os.Stdout, b, img, a)
		}()
	}

	// The device may be released to run mode even after a failed operation.
	switch {
	case a.terminal != 0 && opErr == nil:
		fmt.Println("Start terminal")
		err = runTerminal(port, a.terminal, terminalReset(a, b.ResetAndRun))
	case a.reset:
		fmt.Println("Reset MCU")
		err = b.ResetAndRun()
	}

	if opErr != nil {
		return opErr
	}
	return err
}

// terminalReset returns the reset the terminal issues once it listens: the
// device is still held by the bootloader after a session or when -r asks for
// a reset.
func terminalReset(a actions, reset func() error) func() error {
	if a.needsBootloader() || a.reset {
		return reset
	}
	return nil
}

func printDeviceInfo(w io.Writer, dev *rl78bsl.DeviceInfo) {
	fmt.Fprintf(w, "Device: %s\n", dev.Name)
	fmt.Fprintf(w, "Code size: %d kB\n", dev.CodeSize/1024)
	fmt.Fprintf(w, "Data size: %d kB\n", dev.DataSize/1024)
	fmt.Fprintf(w, "Firmware: %s\n", dev.FirmwareVersion())
	fmt.Fprintf(w, "Protocol: %v\n", dev.Protocol)
}

// runActions - Erases, writes and verifies in this order, stopping at the
// first failure
func runActions(ctx context.Context, out io.Writer, prog flashProgrammer, img *memory.Image, a actions) error {
	if a.erase {
		fmt.Fprintln(out, "Erase")
		if err := prog.Erase(ctx); err != nil {
			return fmt.Errorf("erase failed: %w", err)
		}
	}

	if a.write {
		fmt.Fprintln(out, "Write")
		if err := prog.Program(ctx, img); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
	}

	if a.verify {
		fmt.Fprintln(out, "Verify")
		if err := prog.Verify(ctx, img); err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}
	}

	return nil
}

// newProgressBar - Progress callback drawing one bar per operation
func newProgressBar(w io.Writer) rl78bsl.ProgressFunc {
	var bar *progressbar.ProgressBar
	op := ""

	return func(p rl78bsl.Progress) {
		if bar == nil || p.Op != op {
			op = p.Op
			bar = progressbar.NewOptions(p.Blocks,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(op),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
			)
		}
		bar.Set(p.Block)
	}
}

// waitForKey blocks until a key is pressed, so the operator can power the
// target while RESET is held low.
func waitForKey(ctx context.Context) error {
	fmt.Println("Turn MCU's power on and press any key...")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer term.Restore(fd, state)
	}

	key := make(chan error, 1)
	go func() {
		var b [1]byte
		_, err := os.Stdin.Read(b[:])
		if err == nil && b[0] == terminal.CtrlC {
			err = context.Canceled
		}
		key <- err
	}()

	select {
	case err := <-key:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
