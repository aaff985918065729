package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/hipsterbrown/robstride-motor/robstride"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"robstride.json" description:"Motor table config file"`
	Port    string `short:"p" long:"port" description:"Serial port of the USB-to-CAN adapter (overrides config)"`
	Verbose bool   `short:"v" long:"verbose" description:"Log bus transactions to stderr"`

	Probe    ProbeCommand    `command:"probe" description:"Check that every configured motor answers on the bus"`
	Position PositionCommand `command:"position" alias:"pp" description:"Move to a position using profile position mode"`
	CSP      CSPCommand      `command:"csp" description:"Stream position setpoints in cyclic synchronous position mode"`
	Velocity VelocityCommand `command:"velocity" alias:"vel" description:"Spin at a constant velocity"`
	Current  CurrentCommand  `command:"current" alias:"cur" description:"Drive a constant current"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Command-line control for RobStride motors over a USB-to-CAN adapter"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// withController loads the configuration, connects every motor and runs fn,
// guaranteeing the safe shutdown sequence on exit or interrupt.
func withController(fn func(context.Context, *robstride.Controller) error) error {
	cfg, err := loadControllerConfig()
	if err != nil {
		return err
	}
	if opts.Verbose {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return robstride.Run(ctx, cfg, fn)
}

// wait sleeps for d unless the context is cancelled first.
func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
