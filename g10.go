package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/janch32/rl78flash/g10bsl"
	"github.com/janch32/rl78flash/memory"
	"github.com/janch32/rl78flash/rl78bsl"
	"github.com/janch32/rl78flash/transport"
)

type g10Flags struct {
	linkFlags
	actions
	auto bool
}

func g10Cmd() *cobra.Command {
	var f g10Flags

	cmd := &cobra.Command{
		Use:   "g10 [flags] <port> [<file> <size>]",
		Short: "Programmer for RL78/G10 parts",
		Long: `G10 writes the whole flash of an RL78/G10 part in one erase-write pass
and checks it by CRC. Size is the flash size of the part in bytes or
kilobytes ("4k").`,
		Args:          cobra.MaximumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runG10(cmd.Context(), &f, args)
		},
	}

	addLinkFlags(cmd, &f.linkFlags, "(1 reset DTR, 2 reset RTS)")
	cmd.Flags().BoolVarP(&f.auto, "auto", "a", false, "Auto mode (Erase/Write-Verify-Reset)")
	cmd.Flags().BoolVarP(&f.write, "write", "w", false, "Write memory")
	cmd.Flags().BoolVarP(&f.verify, "verify", "c", false, "Verify memory (CRC check)")
	cmd.Flags().BoolVarP(&f.reset, "reset", "r", false, "Reset MCU (switch to RUN mode)")
	cmd.Flags().IntVarP(&f.terminal, "terminal", "t", 0, "Start terminal with specified baudrate")

	return cmd
}

func runG10(ctx context.Context, f *g10Flags, args []string) error {
	a := f.actions
	if f.auto {
		a.write, a.verify, a.reset = true, true, true
	}

	if a.needsFile() && len(args) < 3 {
		return errors.New("specify both file and size")
	}

	var size uint32
	if len(args) == 3 {
		var err error
		if size, err = g10bsl.ParseSize(args[2]); err != nil {
			return err
		}
	}
	if a.empty() {
		return nil
	}

	wiring, err := transport.ParseG10Mode(f.mode)
	if err != nil {
		return err
	}

	log := f.logger()
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

	if err := port.SetParity(true, true); err != nil {
		return fmt.Errorf("failed to set port attributes: %w", err)
	}

	link := rl78bsl.New(port, f.linkOptions(log, wiring)...)

	var opErr error
	if a.needsFile() {
		opErr = func() error {
			g, err := g10bsl.New(link, size)
			if err != nil {
				return err
			}

			img := g.NewImage()
			if err := img.Load(mem); err != nil {
				return fmt.Errorf("read failed: %w", err)
			}

			if err := g.Handshake(ctx); err != nil {
				return err
			}
			return runActions(ctx, os.Stdout, g, img, a)
		}()
	}

	switch {
	case a.terminal != 0 && opErr == nil:
		fmt.Println("Start terminal")
		if err = port.SetParity(false, false); err == nil {
			err = runTerminal(port, a.terminal, terminalReset(a, link.ResetAndRun))
		}
	case a.reset:
		fmt.Println("Reset MCU")
		err = link.ResetAndRun()
	}

	if opErr != nil {
		return opErr
	}
	return err
}
