// Command scsctl talks to Feetech SCS/STS servos on a serial bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	cfgpkg "github.com/Grigorij-Dudnik/RoboCrew/internal/config"
	"github.com/Grigorij-Dudnik/RoboCrew/internal/logging"
	"github.com/Grigorij-Dudnik/RoboCrew/internal/metrics"
	"github.com/Grigorij-Dudnik/RoboCrew/scs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks bad command lines; they exit with status 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scsctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default $SCS_CONFIG or ./scsctl.yaml)")
	port := fs.String("port", "", "serial port, overrides bus.port")
	baud := fs.Int("baud", 0, "baud rate, overrides bus.baudRate")
	protocol := fs.String("protocol", "", "sts or scs, overrides bus.protocol")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: scsctl [flags] <command> [args]")
		fmt.Fprintln(stderr, "\ncommands:")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-11s %s\n", c.name, c.usage)
		}
		fmt.Fprintln(stderr, "\nflags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "scsctl: %v\n", err)
		return 1
	}
	if *port != "" {
		cfg.Bus.Port = *port
	}
	if *baud != 0 {
		cfg.Bus.BaudRate = *baud
	}
	if *protocol != "" {
		cfg.Bus.Protocol = *protocol
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "scsctl: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	a := newApp(cfg, logger, stdout)
	if err := a.exec(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		fmt.Fprintf(stderr, "scsctl %s: %v\n", fs.Arg(0), err)
		var ue *usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

// app holds what every command needs. The controller is connected lazily
// so commands such as ports and config never touch the bus.
type app struct {
	cfg      *cfgpkg.Config
	logger   *zap.Logger
	out      io.Writer
	opener   scs.Opener
	registry *prometheus.Registry
	busStats *scs.Metrics
	ctrl     *scs.Controller
}

func newApp(cfg *cfgpkg.Config, logger *zap.Logger, out io.Writer) *app {
	reg := metrics.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		registry: reg,
		busStats: scs.NewMetrics(reg),
	}
}

func (a *app) exec(ctx context.Context, name string, args []string) error {
	cmd, ok := lookupCommand(name)
	if !ok {
		return usagef("unknown command %q", name)
	}
	if cmd.bus {
		if err := a.connect(); err != nil {
			return err
		}
		defer a.disconnect()
	}
	return cmd.run(ctx, a, args)
}

func (a *app) connect() error {
	busCfg, err := a.cfg.BusConfig()
	if err != nil {
		return err
	}
	busCfg.Opener = a.opener
	busCfg.Logger = a.logger.Named("scs")
	busCfg.Metrics = a.busStats

	ctrl := scs.NewController(busCfg)
	if !ctrl.Connect(a.cfg.Bus.Port, a.cfg.Bus.BaudRate) {
		return fmt.Errorf("cannot open %s at %d baud", a.cfg.Bus.Port, a.cfg.Bus.BaudRate)
	}
	a.ctrl = ctrl
	a.logger.Debug("bus connected", zap.String("port", a.cfg.Bus.Port), zap.Int("baud", a.cfg.Bus.BaudRate))
	return nil
}

func (a *app) disconnect() {
	if a.ctrl == nil {
		return
	}
	if err := a.ctrl.Disconnect(); err != nil {
		a.logger.Warn("close port", zap.Error(err))
	}
	a.ctrl = nil
}

// report prints device status bits when a reply carried any.
func (a *app) report(id int, status scs.StatusError) {
	if status.HasError() {
		fmt.Fprintf(a.out, "servo %d: %v\n", id, status)
	}
}
