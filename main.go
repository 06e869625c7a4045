package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/janch32/rl78flash/discover"
	"github.com/janch32/rl78flash/memory"
	"github.com/janch32/rl78flash/rl78bsl"
	"github.com/janch32/rl78flash/transport"
)

// Environment variables supplying flag defaults
const (
	envPort   = "RL78FLASH_PORT"
	envDriver = "RL78FLASH_DRIVER"
)

var errUsage = errors.New("invalid usage")

// linkFlags - Settings of the connection to the bootloader shared by the
// commands
type linkFlags struct {
	verbose int
	mode    int
	delay   bool
	driver  string
	timeout time.Duration
}

func addLinkFlags(cmd *cobra.Command, f *linkFlags, modes string) {
	driver := os.Getenv(envDriver)
	if driver == "" {
		driver = transport.DriverGoSerial
	}

	cmd.Flags().CountVarP(&f.verbose, "verbose", "v", "Verbose mode (several times increase verbose level)")
	cmd.Flags().IntVarP(&f.mode, "mode", "m", 1, "Communication mode "+modes)
	cmd.Flags().BoolVarP(&f.delay, "delay", "d", false, "Delay bootloader initialization till keypress")
	cmd.Flags().StringVar(&f.driver, "driver", driver, "Serial driver (go-serial|bug.st)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", rl78bsl.DefaultResponseTimeout, "Bootloader response timeout")
}

func (f *linkFlags) logger() *slog.Logger {
	return newLogger(f.verbose)
}

// linkOptions - Engine options derived from the flags
func (f *linkFlags) linkOptions(log *slog.Logger, wiring transport.Wiring) []rl78bsl.Option {
	opts := []rl78bsl.Option{
		rl78bsl.WithLogger(log),
		rl78bsl.WithEcho(wiring.Echoes()),
		rl78bsl.WithResponseTimeout(f.timeout),
	}
	if f.verbose >= 2 {
		opts = append(opts, rl78bsl.WithProgress(newProgressBar(os.Stderr)))
	}
	if f.delay {
		opts = append(opts, rl78bsl.WithOperatorReady(waitForKey))
	}
	return opts
}

// newLogger maps the -v count onto a log level: none warnings, 1 phases,
// 3 commands, 4 raw frames.
func newLogger(verbose int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose >= 4:
		level = rl78bsl.LevelTrace
	case verbose == 3:
		level = slog.LevelDebug
	case verbose >= 1:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolvePort returns the port given on the command line, the port from the
// environment or the first discovered USB-UART bridge.
func resolvePort(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if port := os.Getenv(envPort); port != "" {
		return port, nil
	}

	fmt.Println("Port not specified, running auto port discovery...")
	port, err := discover.FirstPort()
	if err != nil {
		return "", err
	}
	fmt.Println("Connecting to: " + port)
	return port, nil
}

func openPort(name string, driver string, wiring transport.Wiring) (transport.Port, error) {
	cfg := transport.DefaultConfig()
	cfg.Driver = driver
	cfg.Wiring = wiring

	port, err := transport.Open(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return port, nil
}

// loadImage reads an image file and reports the entry point its termination
// record carries.
func loadImage(path string, log *slog.Logger) (*memory.Memory, error) {
	mem, err := memory.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if entry, ok := mem.Entry(); ok {
		log.Info("image loaded", "file", path, "entry", fmt.Sprintf("0x%06X", entry))
	} else {
		log.Info("image loaded", "file", path)
	}
	return mem, nil
}

func baudRateList() string {
	rates := make([]string, len(rl78bsl.SupportedBaudRates))
	for i, baud := range rl78bsl.SupportedBaudRates {
		rates[i] = strconv.Itoa(baud)
	}
	return strings.Join(rates, ", ")
}

// parseVoltage converts volts given on the command line to millivolts.
func parseVoltage(s string) (int, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: voltage %q", errUsage, s)
	}

	mV := int(v*1000 + 0.5)
	if mV < rl78bsl.MinVoltage || mV > rl78bsl.MaxVoltage {
		return 0, fmt.Errorf("operating voltage is out of range, it must be in range %.1fV..%.1fV",
			float64(rl78bsl.MinVoltage)/1000, float64(rl78bsl.MaxVoltage)/1000)
	}
	return mV, nil
}

func parseAddress(s string) (uint32, error) {
	addr, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: address %q", errUsage, s)
	}
	return uint32(addr), nil
}

func main() {
	rootCmd := rl78Cmd()
	rootCmd.AddCommand(
		g10Cmd(),
		listCmd(),
		checksumCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}
