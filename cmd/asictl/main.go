// asictl is a line-oriented operator tool for ASI stage controllers. It
// connects to one controller per invocation, runs a single subcommand
// against it and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liuyenting/olive-motion-asi/asi"
	"github.com/liuyenting/olive-motion-asi/serialport"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"
)

var (
	opts    = defaultOptions()
	cfgPath string
)

func main() {
	cmd := &cobra.Command{
		Use:     "asictl",
		Short:   "Control ASI motorized stage controllers over a serial port",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd, cfgPath)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.Port, "port", "p", "", "Serial device of the controller, e.g. /dev/ttyUSB0")
	flags.IntVarP(&opts.Baud, "baud", "b", opts.Baud, "Baud rate of the serial link")
	flags.StringVar(&opts.Variant, "variant", opts.Variant, "Controller family: ms2000, lx4000 or tiger")
	flags.StringVarP(&cfgPath, "config", "c", "", "YAML config file mirroring the connection flags")
	flags.BoolVar(&opts.Debug, "debug", false, "Log wire traffic")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "Abort any single operation after this duration (0 = no limit)")

	cmd.AddCommand(
		portsCommand(),
		identifyCommand(),
		axesCommand(),
		positionCommand(),
		moveCommand(),
		homeCommand(),
		calibrateCommand(),
		haltCommand(),
		rawCommand(),
	)
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for asictl",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// opContext bounds an operation by --timeout and Ctrl-C.
func opContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if opts.Timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)

	return ctx, func() {
		cancel()
		stop()
	}
}

func dialectFor(variant string) (asi.Dialect, error) {
	switch strings.ToLower(variant) {
	case "ms2000":
		return asi.MS2000(), nil
	case "lx4000":
		return asi.LX4000(), nil
	case "tiger":
		return asi.Tiger(), nil
	default:
		return asi.Dialect{}, fmt.Errorf("unknown controller variant %q (want ms2000, lx4000 or tiger)", variant)
	}
}

// openController connects to the configured port and probes the controller,
// returning it together with a release function for defer.
func openController(ctx context.Context) (*asi.Controller, func(), error) {
	if opts.Port == "" {
		return nil, nil, errors.New("no serial port given, use --port or a config file")
	}

	dialect, err := dialectFor(opts.Variant)
	if err != nil {
		return nil, nil, err
	}

	port, err := serialport.New(opts.Port, serialport.WithBaudRate(opts.Baud))
	if err != nil {
		return nil, nil, err
	}

	cfg, err := asi.NewConfig(dialect)
	if err != nil {
		return nil, nil, err
	}

	ctrl, err := asi.NewController(port, cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := ctrl.Open(ctx); err != nil {
		return nil, nil, err
	}

	release := func() {
		if err := ctrl.Close(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, "close controller:", err)
		}
	}

	return ctrl, release, nil
}

// openAxis connects the controller and opens a single axis on it.
func openAxis(ctx context.Context, label string) (*asi.Axis, func(), error) {
	ctrl, release, err := openController(ctx)
	if err != nil {
		return nil, nil, err
	}

	axis, err := asi.NewAxis(ctrl, strings.ToUpper(label))
	if err != nil {
		release()
		return nil, nil, err
	}

	if err := axis.Open(ctx); err != nil {
		release()
		return nil, nil, err
	}

	return axis, release, nil
}

// stopOnAbort halts the stage when err is a context cancellation, so an
// interrupted wait does not leave the hardware moving.
func stopOnAbort(axis *asi.Axis, err error) {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return
	}

	if herr := axis.Stop(context.Background()); herr != nil {
		fmt.Fprintln(os.Stderr, "stop after abort:", herr)
	}
}
