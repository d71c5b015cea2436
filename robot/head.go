package robot

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Grigorij-Dudnik/RoboCrew/scs"
)

// HeadConfig names the head servos and their calibrations.
type HeadConfig struct {
	Yaw   MotorCalibration `yaml:"yaw" mapstructure:"yaw"`
	Pitch MotorCalibration `yaml:"pitch" mapstructure:"pitch"`
}

// DefaultHeadConfig returns full-range degree calibrations for yaw servo 7
// and pitch servo 8.
func DefaultHeadConfig() HeadConfig {
	return HeadConfig{
		Yaw:   *NewMotorCalibration(7),
		Pitch: *NewMotorCalibration(8),
	}
}

// HeadDriver is the part of the device API the head needs.
type HeadDriver interface {
	SetPositionMode(id int) (scs.StatusError, error)
	WriteTorqueEnable(id int, enable bool) (scs.StatusError, error)
	ReadPosition(id int) (int, scs.StatusError, error)
	SyncWritePositions(positions map[int]int) error
}

// Head points a two-axis head in degrees.
type Head struct {
	driver HeadDriver
	cfg    HeadConfig
}

// NewHead validates both calibrations.
func NewHead(driver HeadDriver, cfg HeadConfig) (*Head, error) {
	if err := cfg.Yaw.Validate(); err != nil {
		return nil, errors.Wrap(err, "yaw calibration")
	}
	if err := cfg.Pitch.Validate(); err != nil {
		return nil, errors.Wrap(err, "pitch calibration")
	}
	if cfg.Yaw.ID == cfg.Pitch.ID {
		return nil, errors.Errorf("yaw and pitch share servo ID %d", cfg.Yaw.ID)
	}
	return &Head{driver: driver, cfg: cfg}, nil
}

// Enable switches both servos to position mode with torque on.
func (h *Head) Enable() error {
	var err error
	for _, id := range []int{h.cfg.Yaw.ID, h.cfg.Pitch.ID} {
		if _, e := h.driver.SetPositionMode(id); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "position mode for servo %d", id))
			continue
		}
		if _, e := h.driver.WriteTorqueEnable(id, true); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "torque for servo %d", id))
		}
	}
	return err
}

// TurnYaw points the yaw axis.
func (h *Head) TurnYaw(degrees float64) (int, error) {
	pos, err := h.goal(&h.cfg.Yaw, degrees)
	if err != nil {
		return 0, err
	}
	return pos, h.write(map[int]int{h.cfg.Yaw.ID: pos})
}

// TurnPitch points the pitch axis.
func (h *Head) TurnPitch(degrees float64) (int, error) {
	pos, err := h.goal(&h.cfg.Pitch, degrees)
	if err != nil {
		return 0, err
	}
	return pos, h.write(map[int]int{h.cfg.Pitch.ID: pos})
}

// Look points both axes with one frame.
func (h *Head) Look(yaw, pitch float64) (map[int]int, error) {
	yawPos, err := h.goal(&h.cfg.Yaw, yaw)
	if err != nil {
		return nil, err
	}
	pitchPos, err := h.goal(&h.cfg.Pitch, pitch)
	if err != nil {
		return nil, err
	}

	positions := map[int]int{h.cfg.Yaw.ID: yawPos, h.cfg.Pitch.ID: pitchPos}
	return positions, h.write(positions)
}

// Position reads both axes in their calibrated units.
func (h *Head) Position() (yaw, pitch float64, err error) {
	if yaw, err = h.read(&h.cfg.Yaw); err != nil {
		return 0, 0, err
	}
	if pitch, err = h.read(&h.cfg.Pitch); err != nil {
		return 0, 0, err
	}
	return yaw, pitch, nil
}

func (h *Head) goal(cal *MotorCalibration, value float64) (int, error) {
	pos, err := cal.Denormalize(value)
	if err != nil {
		return 0, errors.Wrapf(err, "servo %d", cal.ID)
	}
	return pos, nil
}

func (h *Head) read(cal *MotorCalibration) (float64, error) {
	raw, _, err := h.driver.ReadPosition(cal.ID)
	if err != nil {
		return 0, errors.Wrapf(err, "read head servo %d", cal.ID)
	}
	return cal.Normalize(raw)
}

func (h *Head) write(positions map[int]int) error {
	return errors.Wrap(h.driver.SyncWritePositions(positions), "move head")
}
