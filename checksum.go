package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/janch32/rl78flash/rl78bsl"
	"github.com/janch32/rl78flash/transport"
)

type checksumFlags struct {
	linkFlags
	baud    int
	voltage string
}

func checksumCmd() *cobra.Command {
	var f checksumFlags

	cmd := &cobra.Command{
		Use:   "checksum [flags] <port> <start> <end> [<file>]",
		Short: "Read the flash checksum of an address range",
		Long: `Checksum reads the bootloader checksum of start..end (both inclusive).
When a file is given, the checksum of the same range of the file is
printed too and a difference is reported as an error.`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecksum(cmd.Context(), &f, args)
		},
	}

	addLinkFlags(cmd, &f.linkFlags, "(1 single-wire/reset DTR, 2 two-wire/reset DTR, 3 single-wire/reset RTS, 4 two-wire/reset RTS)")
	cmd.Flags().IntVarP(&f.baud, "baud", "b", transport.DefaultBaudRate, "Baudrate (115200, 250000, 500000, 1000000)")
	cmd.Flags().StringVarP(&f.voltage, "power", "p", "3.3", "Power supply voltage")

	return cmd
}

func runChecksum(ctx context.Context, f *checksumFlags, args []string) error {
	start, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	end, err := parseAddress(args[2])
	if err != nil {
		return err
	}
	if end < start {
		return fmt.Errorf("%w: end 0x%06X before start 0x%06X", errUsage, end, start)
	}

	var local []byte
	if len(args) == 4 {
		mem, err := loadImage(args[3], f.logger())
		if err != nil {
			return err
		}
		local = mem.Range(start, end)
	}

	mV, err := parseVoltage(f.voltage)
	if err != nil {
		return err
	}
	wiring, err := transport.ParseMode(f.mode)
	if err != nil {
		return err
	}

	port, err := openPort(args[0], f.driver, wiring)
	if err != nil {
		return err
	}
	defer port.Close()

	b := rl78bsl.New(port, f.linkOptions(f.logger(), wiring)...)
	if err := b.Handshake(ctx, f.baud, mV); err != nil {
		return err
	}

	remote, err := b.CmdChecksum(start, end)
	if err != nil {
		return err
	}
	return compareChecksum(os.Stdout, start, end, remote, local)
}

// compareChecksum prints the device checksum and, when local is given, the
// checksum of the local image.
func compareChecksum(w io.Writer, start, end uint32, remote uint16, local []byte) error {
	fmt.Fprintf(w, "Checksum 0x%06X..0x%06X: %04Xh\n", start, end, remote)
	if local == nil {
		return nil
	}

	sum := rl78bsl.ImageChecksum(local)
	fmt.Fprintf(w, "File checksum: %04Xh\n", sum)
	if sum != remote {
		return fmt.Errorf("checksum mismatch (remote: %04Xh, local: %04Xh)", remote, sum)
	}
	return nil
}
