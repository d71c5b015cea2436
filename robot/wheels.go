// Package robot drives the wheel base and head of a mobile robot built from
// SCS/STS servos.
package robot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Grigorij-Dudnik/RoboCrew/scs"
)

// Action is a wheel base motion.
type Action string

// Wheel base actions.
const (
	ActionUp    Action = "up"
	ActionDown  Action = "down"
	ActionLeft  Action = "left"
	ActionRight Action = "right"
)

// ParseAction accepts the action names case-insensitively, plus the
// aliases forward and backward.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "up", "forward":
		return ActionUp, nil
	case "down", "backward":
		return ActionDown, nil
	case "left":
		return ActionLeft, nil
	case "right":
		return ActionRight, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Role limits which actions a wheel takes part in.
type Role string

// Wheel roles.
const (
	RoleBoth  Role = "both"  // every action
	RoleDrive Role = "drive" // up and down
	RoleSteer Role = "steer" // left and right
)

// WheelCalibration holds the direction multiplier of each action.
type WheelCalibration struct {
	Up    int `yaml:"up" mapstructure:"up"`
	Down  int `yaml:"down" mapstructure:"down"`
	Left  int `yaml:"left" mapstructure:"left"`
	Right int `yaml:"right" mapstructure:"right"`
}

// ValueFor returns the multiplier for an action.
func (c WheelCalibration) ValueFor(a Action) int {
	switch a {
	case ActionUp:
		return c.Up
	case ActionDown:
		return c.Down
	case ActionLeft:
		return c.Left
	case ActionRight:
		return c.Right
	default:
		return 0
	}
}

// WheelSpec defines one wheel servo.
type WheelSpec struct {
	ID          int              `yaml:"id" mapstructure:"id"`
	Role        Role             `yaml:"role" mapstructure:"role"`
	Calibration WheelCalibration `yaml:"calibration" mapstructure:"calibration"`
}

// Allows reports whether the wheel's role takes part in a.
func (w WheelSpec) Allows(a Action) bool {
	switch w.Role {
	case RoleBoth:
		return a == ActionUp || a == ActionDown || a == ActionLeft || a == ActionRight
	case RoleDrive:
		return a == ActionUp || a == ActionDown
	case RoleSteer:
		return a == ActionLeft || a == ActionRight
	default:
		return false
	}
}

// SpeedFor returns the signed wheel speed for a, zero when the role
// does not allow it.
func (w WheelSpec) SpeedFor(a Action, baseSpeed int) int {
	if !w.Allows(a) {
		return 0
	}
	return w.Calibration.ValueFor(a) * baseSpeed
}

// WheelConfig is the wheel base layout shared by every action.
type WheelConfig struct {
	Speed        int         `yaml:"speed" mapstructure:"speed"`
	LinearSpeed  float64     `yaml:"linearSpeed" mapstructure:"linearSpeed"`   // m/s at Speed
	AngularSpeed float64     `yaml:"angularSpeed" mapstructure:"angularSpeed"` // deg/s at Speed
	Wheels       []WheelSpec `yaml:"wheels" mapstructure:"wheels"`
}

// DefaultWheelConfig returns the three-wheel omni base layout.
func DefaultWheelConfig() WheelConfig {
	return WheelConfig{
		Speed:        1000,
		LinearSpeed:  0.25,
		AngularSpeed: 100,
		Wheels: []WheelSpec{
			{ID: 7, Role: RoleBoth, Calibration: WheelCalibration{Up: 1, Down: -1, Left: -1, Right: 1}},
			{ID: 8, Role: RoleSteer, Calibration: WheelCalibration{Up: 0, Down: 0, Left: -1, Right: 1}},
			{ID: 9, Role: RoleBoth, Calibration: WheelCalibration{Up: -1, Down: 1, Left: -1, Right: 1}},
		},
	}
}

// Validate checks the wheel layout.
func (c WheelConfig) Validate() error {
	if len(c.Wheels) == 0 {
		return errors.New("wheel configuration must define at least one wheel")
	}
	if c.Speed < 0 || c.Speed > scs.MaxSpeed {
		return fmt.Errorf("wheel speed %d outside 0..%d", c.Speed, scs.MaxSpeed)
	}

	seen := make(map[int]bool, len(c.Wheels))
	for _, w := range c.Wheels {
		if w.ID < scs.MinConfigurableID || w.ID > scs.MaxServoID {
			return fmt.Errorf("wheel ID %d outside %d..%d", w.ID, scs.MinConfigurableID, scs.MaxServoID)
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate wheel ID %d", w.ID)
		}
		seen[w.ID] = true

		switch w.Role {
		case RoleBoth, RoleDrive, RoleSteer:
		default:
			return fmt.Errorf("wheel %d: unknown role %q", w.ID, w.Role)
		}
	}
	return nil
}

// WheelDriver is the part of the device API the wheel base needs.
type WheelDriver interface {
	SetWheelMode(id int) (scs.StatusError, error)
	SyncWriteWheelSpeeds(speeds map[int]int) error
}

// Wheels drives a wheel base with one sync write per action.
type Wheels struct {
	driver WheelDriver
	cfg    WheelConfig
	logger *zap.Logger
}

// NewWheels validates cfg and binds it to a driver.
func NewWheels(driver WheelDriver, cfg WheelConfig, logger *zap.Logger) (*Wheels, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wheels{driver: driver, cfg: cfg, logger: logger}, nil
}

// Config returns the wheel layout.
func (w *Wheels) Config() WheelConfig {
	return w.cfg
}

// Speeds computes the per-wheel speeds of an action without sending them.
func (w *Wheels) Speeds(a Action) map[int]int {
	out := make(map[int]int, len(w.cfg.Wheels))
	for _, wheel := range w.cfg.Wheels {
		out[wheel.ID] = wheel.SpeedFor(a, w.cfg.Speed)
	}
	return out
}

// Drive starts an action and leaves the wheels turning.
func (w *Wheels) Drive(a Action) (map[int]int, error) {
	speeds := w.Speeds(a)
	if err := w.driver.SyncWriteWheelSpeeds(speeds); err != nil {
		return nil, errors.Wrapf(err, "drive %s", a)
	}
	w.logger.Debug("wheels driving", zap.String("action", string(a)), zap.Any("speeds", speeds))
	return speeds, nil
}

// Forward drives using the up multipliers.
func (w *Wheels) Forward() (map[int]int, error) { return w.Drive(ActionUp) }

// Backward drives using the down multipliers.
func (w *Wheels) Backward() (map[int]int, error) { return w.Drive(ActionDown) }

// TurnLeft rotates using the left multipliers.
func (w *Wheels) TurnLeft() (map[int]int, error) { return w.Drive(ActionLeft) }

// TurnRight rotates using the right multipliers.
func (w *Wheels) TurnRight() (map[int]int, error) { return w.Drive(ActionRight) }

// Stop sets every wheel speed to zero.
func (w *Wheels) Stop() (map[int]int, error) {
	speeds := make(map[int]int, len(w.cfg.Wheels))
	for _, wheel := range w.cfg.Wheels {
		speeds[wheel.ID] = 0
	}
	if err := w.driver.SyncWriteWheelSpeeds(speeds); err != nil {
		return nil, errors.Wrap(err, "stop wheels")
	}
	return speeds, nil
}

// ApplyWheelModes switches every wheel servo to wheel mode and returns the
// IDs switched before the first failure.
func (w *Wheels) ApplyWheelModes() ([]int, error) {
	applied := make([]int, 0, len(w.cfg.Wheels))
	for _, wheel := range w.cfg.Wheels {
		if _, err := w.driver.SetWheelMode(wheel.ID); err != nil {
			return applied, errors.Wrapf(err, "wheel mode for servo %d", wheel.ID)
		}
		applied = append(applied, wheel.ID)
	}
	return applied, nil
}

// Run drives an action for d, then stops. The wheels are stopped even when
// ctx is cancelled early.
func (w *Wheels) Run(ctx context.Context, a Action, d time.Duration) (map[int]int, error) {
	if d <= 0 {
		return map[int]int{}, nil
	}

	speeds, err := w.Drive(a)
	if err != nil {
		_, stopErr := w.Stop()
		return nil, multierr.Append(err, stopErr)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}

	_, stopErr := w.Stop()
	return speeds, multierr.Append(err, stopErr)
}

// Move drives forward for a distance in meters, backward when negative,
// timed from LinearSpeed.
func (w *Wheels) Move(ctx context.Context, meters float64) (map[int]int, error) {
	if w.cfg.LinearSpeed <= 0 {
		return nil, errors.New("linear speed not configured")
	}
	a := ActionUp
	if meters < 0 {
		a, meters = ActionDown, -meters
	}
	return w.Run(ctx, a, seconds(meters/w.cfg.LinearSpeed))
}

// Turn rotates right by degrees, left when negative, timed from AngularSpeed.
func (w *Wheels) Turn(ctx context.Context, degrees float64) (map[int]int, error) {
	if w.cfg.AngularSpeed <= 0 {
		return nil, errors.New("angular speed not configured")
	}
	a := ActionRight
	if degrees < 0 {
		a, degrees = ActionLeft, -degrees
	}
	return w.Run(ctx, a, seconds(degrees/w.cfg.AngularSpeed))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
