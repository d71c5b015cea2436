package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Grigorij-Dudnik/RoboCrew/internal/metrics"
	"github.com/Grigorij-Dudnik/RoboCrew/robot"
	"github.com/Grigorij-Dudnik/RoboCrew/scs"
	"github.com/Grigorij-Dudnik/RoboCrew/transports"
)

type command struct {
	name  string
	usage string
	bus   bool
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"ports", "[-all]  list serial ports", false, cmdPorts},
	{"ping", "ID  check that a servo answers", true, cmdPing},
	{"scan", "[-first N] [-last N]  list responding IDs", true, cmdScan},
	{"pos", "ID...  read present positions", true, cmdPos},
	{"goto", "[-speed N] [-acc N] ID POS [ID POS...]  move servos", true, cmdGoto},
	{"torque", "ID on|off  switch torque", true, cmdTorque},
	{"wheel", "ID...  switch servos to wheel mode", true, cmdWheel},
	{"speed", "ID SPEED  set wheel speed -10000..10000", true, cmdSpeed},
	{"mode", "ID [wheel|position]  read or set the operating mode", true, cmdMode},
	{"set-id", "OLD NEW  change a servo ID", true, cmdSetID},
	{"baud", "ID [INDEX]  read or set the baud index 0..7", true, cmdBaud},
	{"limits", "ID [MIN MAX]  read or set position limits", true, cmdLimits},
	{"correction", "ID [VALUE]  read or set position correction", true, cmdCorrection},
	{"drive", "[-no-modes] ACTION DURATION  drive the wheel base", true, cmdDrive},
	{"move", "METERS  drive straight, negative is backward", true, cmdMove},
	{"turn", "DEGREES  rotate, negative is left", true, cmdTurn},
	{"head", "YAW PITCH  point the head in degrees", true, cmdHead},
	{"monitor", "[-interval D] [-count N] ID...  poll positions", true, cmdMonitor},
	{"config", "print the effective configuration", false, cmdConfig},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	return nil
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, s := range args {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, usagef("not a number: %q", s)
		}
		out[i] = v
	}
	return out, nil
}

// intArgs parses exactly one of the given argument counts.
func intArgs(args []string, counts ...int) ([]int, error) {
	for _, n := range counts {
		if len(args) == n {
			return parseInts(args)
		}
	}
	return nil, usagef("unexpected arguments: %s", strings.Join(args, " "))
}

func cmdPorts(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("ports")
	all := fs.Bool("all", false, "include ports that do not look like USB adapters")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	ports, err := scs.ListPorts()
	if err != nil {
		return err
	}
	if !*all {
		ports = transports.FilterCandidatePorts(ports)
	}
	for _, p := range ports {
		fmt.Fprintln(a.out, p)
	}
	return nil
}

func cmdPing(_ context.Context, a *app, args []string) error {
	ids, err := intArgs(args, 1)
	if err != nil {
		return err
	}
	status, err := a.ctrl.Servo(ids[0]).Ping()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "servo %d: ok\n", ids[0])
	a.report(ids[0], status)
	return nil
}

func cmdScan(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("scan")
	first := fs.Int("first", 0, "first ID")
	last := fs.Int("last", scs.MaxServoID, "last ID")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	found, err := a.ctrl.Scan(*first, *last)
	if err != nil {
		return err
	}
	for _, id := range found {
		fmt.Fprintln(a.out, id)
	}
	a.logger.Info("scan finished", zap.Int("found", len(found)))
	return nil
}

func cmdPos(_ context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usagef("pos needs at least one ID")
	}
	ids, err := parseInts(args)
	if err != nil {
		return err
	}
	for _, id := range ids {
		pos, status, err := a.ctrl.Servo(id).Position()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d %d\n", id, pos)
		a.report(id, status)
	}
	return nil
}

func cmdGoto(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("goto")
	speed := fs.Int("speed", -1, "goal speed 0..10000 written before moving")
	acc := fs.Int("acc", -1, "acceleration 0..254 written before moving")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 || len(rest)%2 != 0 {
		return usagef("goto needs ID POS pairs")
	}
	vals, err := parseInts(rest)
	if err != nil {
		return err
	}

	positions := make(map[int]int, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		positions[vals[i]] = vals[i+1]
	}
	for id := range positions {
		s := a.ctrl.Servo(id)
		if *speed >= 0 {
			if _, err := s.SetGoalSpeed(*speed); err != nil {
				return err
			}
		}
		if *acc >= 0 {
			if _, err := s.SetAcceleration(*acc); err != nil {
				return err
			}
		}
	}

	if len(positions) == 1 {
		status, err := a.ctrl.Servo(vals[0]).SetPosition(vals[1])
		if err != nil {
			return err
		}
		a.report(vals[0], status)
		return nil
	}
	return a.ctrl.SyncWritePositions(positions)
}

func cmdTorque(_ context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return usagef("torque needs ID on|off")
	}
	ids, err := parseInts(args[:1])
	if err != nil {
		return err
	}
	var enable bool
	switch strings.ToLower(args[1]) {
	case "on", "1", "true":
		enable = true
	case "off", "0", "false":
	default:
		return usagef("torque state must be on or off, got %q", args[1])
	}
	status, err := a.ctrl.Servo(ids[0]).SetTorqueEnabled(enable)
	if err != nil {
		return err
	}
	a.report(ids[0], status)
	return nil
}

func cmdWheel(_ context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usagef("wheel needs at least one ID")
	}
	ids, err := parseInts(args)
	if err != nil {
		return err
	}
	for _, id := range ids {
		status, err := a.ctrl.Servo(id).SetWheelMode()
		if err != nil {
			return err
		}
		a.report(id, status)
	}
	return nil
}

func cmdSpeed(_ context.Context, a *app, args []string) error {
	vals, err := intArgs(args, 2)
	if err != nil {
		return err
	}
	status, err := a.ctrl.Servo(vals[0]).SetWheelSpeed(vals[1])
	if err != nil {
		return err
	}
	a.report(vals[0], status)
	return nil
}

func cmdMode(_ context.Context, a *app, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usagef("mode needs ID [wheel|position]")
	}
	ids, err := parseInts(args[:1])
	if err != nil {
		return err
	}
	s := a.ctrl.Servo(ids[0])

	var status scs.StatusError
	if len(args) == 1 {
		var mode int
		mode, status, err = s.Mode()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, modeName(mode))
	} else {
		switch args[1] {
		case "wheel":
			status, err = s.SetWheelMode()
		case "position":
			status, err = s.SetPositionMode()
		default:
			return usagef("mode must be wheel or position, got %q", args[1])
		}
		if err != nil {
			return err
		}
	}
	a.report(ids[0], status)
	return nil
}

func modeName(mode int) string {
	switch mode {
	case scs.ModePosition:
		return "position"
	case scs.ModeWheel:
		return "wheel"
	default:
		return fmt.Sprintf("mode %d", mode)
	}
}

func cmdSetID(_ context.Context, a *app, args []string) error {
	vals, err := intArgs(args, 2)
	if err != nil {
		return err
	}
	if err := a.ctrl.Servo(vals[0]).SetID(vals[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "servo %d is now %d\n", vals[0], vals[1])
	return nil
}

func cmdBaud(_ context.Context, a *app, args []string) error {
	vals, err := intArgs(args, 1, 2)
	if err != nil {
		return err
	}
	s := a.ctrl.Servo(vals[0])
	if len(vals) == 2 {
		status, err := s.SetBaudIndex(vals[1])
		if err != nil {
			return err
		}
		a.report(vals[0], status)
		return nil
	}

	index, status, err := s.BaudIndex()
	if err != nil {
		return err
	}
	if index >= 0 && index < len(scs.BaudRates) {
		fmt.Fprintf(a.out, "%d (%d baud)\n", index, scs.BaudRates[index])
	} else {
		fmt.Fprintln(a.out, index)
	}
	a.report(vals[0], status)
	return nil
}

func cmdLimits(_ context.Context, a *app, args []string) error {
	vals, err := intArgs(args, 1, 3)
	if err != nil {
		return err
	}
	s := a.ctrl.Servo(vals[0])
	if len(vals) == 3 {
		return s.SetLimits(vals[1], vals[2])
	}
	minPos, maxPos, err := s.Limits()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d %d\n", minPos, maxPos)
	return nil
}

func cmdCorrection(_ context.Context, a *app, args []string) error {
	vals, err := intArgs(args, 1, 2)
	if err != nil {
		return err
	}
	s := a.ctrl.Servo(vals[0])
	if len(vals) == 2 {
		status, err := s.SetPosCorrection(vals[1])
		if err != nil {
			return err
		}
		a.report(vals[0], status)
		return nil
	}
	correction, status, err := s.PosCorrection()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, correction)
	a.report(vals[0], status)
	return nil
}

func (a *app) wheels(applyModes bool) (*robot.Wheels, error) {
	w, err := robot.NewWheels(a.ctrl, a.cfg.WheelConfig(), a.logger.Named("wheels"))
	if err != nil {
		return nil, err
	}
	if applyModes {
		if _, err := w.ApplyWheelModes(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (a *app) printSpeeds(speeds map[int]int) {
	for _, spec := range a.cfg.Wheels.Wheels {
		if s, ok := speeds[spec.ID]; ok {
			fmt.Fprintf(a.out, "%d %d\n", spec.ID, s)
		}
	}
}

func cmdDrive(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("drive")
	noModes := fs.Bool("no-modes", false, "skip switching the wheels to wheel mode")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usagef("drive needs ACTION DURATION")
	}
	action, err := robot.ParseAction(fs.Arg(0))
	if err != nil {
		return usagef("%v", err)
	}
	d, err := time.ParseDuration(fs.Arg(1))
	if err != nil {
		return usagef("bad duration %q", fs.Arg(1))
	}

	w, err := a.wheels(!*noModes)
	if err != nil {
		return err
	}
	speeds, err := w.Run(ctx, action, d)
	a.printSpeeds(speeds)
	return err
}

func cmdMove(ctx context.Context, a *app, args []string) error {
	return a.runDistance(ctx, args, "move needs METERS", (*robot.Wheels).Move)
}

func cmdTurn(ctx context.Context, a *app, args []string) error {
	return a.runDistance(ctx, args, "turn needs DEGREES", (*robot.Wheels).Turn)
}

func (a *app) runDistance(ctx context.Context, args []string, usage string,
	fn func(*robot.Wheels, context.Context, float64) (map[int]int, error)) error {
	if len(args) != 1 {
		return usagef("%s", usage)
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return usagef("not a number: %q", args[0])
	}
	w, err := a.wheels(true)
	if err != nil {
		return err
	}
	speeds, err := fn(w, ctx, v)
	a.printSpeeds(speeds)
	return err
}

func cmdHead(_ context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return usagef("head needs YAW PITCH")
	}
	yaw, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return usagef("not a number: %q", args[0])
	}
	pitch, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return usagef("not a number: %q", args[1])
	}

	h, err := robot.NewHead(a.ctrl, a.cfg.Head)
	if err != nil {
		return err
	}
	if err := h.Enable(); err != nil {
		return err
	}
	positions, err := h.Look(yaw, pitch)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d %d\n%d %d\n",
		a.cfg.Head.Yaw.ID, positions[a.cfg.Head.Yaw.ID],
		a.cfg.Head.Pitch.ID, positions[a.cfg.Head.Pitch.ID])
	return nil
}

func cmdMonitor(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("monitor")
	interval := fs.Duration("interval", 200*time.Millisecond, "poll interval")
	count := fs.Int("count", 0, "number of polls, 0 runs until interrupted")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usagef("monitor needs at least one ID")
	}
	ids, err := parseInts(fs.Args())
	if err != nil {
		return err
	}

	pm := metrics.NewPositionMetrics(a.registry)
	if a.cfg.Metrics.Enable {
		stop := a.serveMetrics()
		defer stop()
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		for _, id := range ids {
			pos, _, err := a.ctrl.ReadPosition(id)
			pm.Observe(id, pos, err)
			if err != nil {
				a.logger.Warn("poll failed", zap.Int("id", id), zap.Error(err))
				continue
			}
			fmt.Fprintf(a.out, "%d %d\n", id, pos)
		}
		if *count > 0 && n >= *count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// serveMetrics exposes the registry until the returned func is called.
func (a *app) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, metrics.Handler(a.registry))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Addr), zap.String("path", a.cfg.Metrics.Path))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func cmdConfig(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return usagef("config takes no arguments")
	}
	out, err := a.cfg.YAML()
	if err != nil {
		return err
	}
	_, err = a.out.Write(out)
	return err
}
