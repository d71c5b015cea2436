package robot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/Grigorij-Dudnik/RoboCrew/scs"
)

// NormMode selects the unit of normalized positions.
type NormMode int

// Normalization modes, numbered as in existing calibration files.
const (
	NormRaw       NormMode = iota // raw servo steps
	NormRange100                  // 0..100
	NormRangeM100                 // -100..100
	NormDegrees                   // -180..180
)

func (m NormMode) String() string {
	switch m {
	case NormRaw:
		return "raw"
	case NormRange100:
		return "0..100"
	case NormRangeM100:
		return "-100..100"
	case NormDegrees:
		return "degrees"
	default:
		return fmt.Sprintf("norm(%d)", int(m))
	}
}

// MotorCalibration maps raw positions of one servo onto a normalized range.
type MotorCalibration struct {
	ID           int      `json:"id" yaml:"id" mapstructure:"id"`
	DriveMode    int      `json:"drive_mode" yaml:"drive_mode" mapstructure:"drive_mode"` // 0 normal, 1 inverted
	HomingOffset int      `json:"homing_offset" yaml:"homing_offset" mapstructure:"homing_offset"`
	RangeMin     int      `json:"range_min" yaml:"range_min" mapstructure:"range_min"`
	RangeMax     int      `json:"range_max" yaml:"range_max" mapstructure:"range_max"`
	NormMode     NormMode `json:"norm_mode" yaml:"norm_mode" mapstructure:"norm_mode"`
}

// NewMotorCalibration returns a full-range calibration in degrees.
func NewMotorCalibration(id int) *MotorCalibration {
	return &MotorCalibration{
		ID:       id,
		RangeMin: 0,
		RangeMax: scs.MaxPosition,
		NormMode: NormDegrees,
	}
}

// Validate checks the calibration parameters.
func (c *MotorCalibration) Validate() error {
	if c.ID < 0 || c.ID > scs.MaxServoID {
		return fmt.Errorf("invalid servo ID: %d (must be 0-%d)", c.ID, scs.MaxServoID)
	}
	if c.RangeMin >= c.RangeMax {
		return fmt.Errorf("invalid range: min (%d) must be less than max (%d)", c.RangeMin, c.RangeMax)
	}
	if c.RangeMin < 0 || c.RangeMax > scs.MaxPosition {
		return fmt.Errorf("range values must be between 0-%d, got min=%d max=%d", scs.MaxPosition, c.RangeMin, c.RangeMax)
	}
	if c.HomingOffset < -scs.MaxPosCorrection || c.HomingOffset > scs.MaxPosCorrection {
		return fmt.Errorf("homing offset %d outside ±%d", c.HomingOffset, scs.MaxPosCorrection)
	}
	if c.NormMode < NormRaw || c.NormMode > NormDegrees {
		return fmt.Errorf("invalid normalization mode: %d", c.NormMode)
	}
	return nil
}

// Center returns the middle of the calibrated range.
func (c *MotorCalibration) Center() float64 {
	return float64(c.RangeMin+c.RangeMax) / 2.0
}

func (c *MotorCalibration) String() string {
	direction := "normal"
	if c.DriveMode != 0 {
		direction = "inverted"
	}
	return fmt.Sprintf("ID %d: range[%d-%d] %s %s (offset: %d)",
		c.ID, c.RangeMin, c.RangeMax, c.NormMode, direction, c.HomingOffset)
}

// Normalize converts a raw position into the calibration's unit.
func (c *MotorCalibration) Normalize(raw int) (float64, error) {
	if c.RangeMax == c.RangeMin {
		return 0, errors.New("invalid calibration: min and max are equal")
	}

	center := c.Center()
	half := float64(c.RangeMax-c.RangeMin) / 2.0

	var v float64
	switch c.NormMode {
	case NormRaw:
		v = float64(raw)
		if c.DriveMode != 0 {
			v = 2*center - v
		}
		return v, nil
	case NormRange100:
		v = clampFloat(float64(raw-c.RangeMin)/float64(c.RangeMax-c.RangeMin)*100.0, 0, 100)
		if c.DriveMode != 0 {
			v = 100.0 - v
		}
		return v, nil
	case NormRangeM100:
		v = clampFloat((float64(raw)-center)/half*100.0, -100, 100)
	case NormDegrees:
		v = clampFloat((float64(raw)-center)/half*180.0, -180, 180)
	default:
		return 0, fmt.Errorf("unknown normalization mode: %d", c.NormMode)
	}

	if c.DriveMode != 0 {
		v = -v
	}
	return v, nil
}

// Denormalize converts a normalized value into a goal position inside the
// calibrated range.
func (c *MotorCalibration) Denormalize(value float64) (int, error) {
	if c.RangeMax == c.RangeMin {
		return 0, errors.New("invalid calibration: min and max are equal")
	}

	center := c.Center()
	half := float64(c.RangeMax-c.RangeMin) / 2.0

	var raw float64
	switch c.NormMode {
	case NormRaw:
		if c.DriveMode != 0 {
			value = 2*center - value
		}
		raw = value
	case NormRange100:
		if c.DriveMode != 0 {
			value = 100.0 - value
		}
		raw = clampFloat(value, 0, 100)/100.0*float64(c.RangeMax-c.RangeMin) + float64(c.RangeMin)
	case NormRangeM100:
		if c.DriveMode != 0 {
			value = -value
		}
		raw = center + clampFloat(value, -100, 100)/100.0*half
	case NormDegrees:
		if c.DriveMode != 0 {
			value = -value
		}
		raw = center + clampFloat(value, -180, 180)/180.0*half
	default:
		return 0, fmt.Errorf("unknown normalization mode: %d", c.NormMode)
	}

	pos := int(math.Round(raw))
	pos = max(c.RangeMin, min(c.RangeMax, pos))
	return pos, nil
}

// CorrectionWriter is the part of the device API that stores a homing offset.
type CorrectionWriter interface {
	WritePosCorrection(id, correction int) (scs.StatusError, error)
}

// ApplyHomingOffset stores the homing offset in the servo's position
// correction register.
func (c *MotorCalibration) ApplyHomingOffset(w CorrectionWriter) error {
	if _, err := w.WritePosCorrection(c.ID, c.HomingOffset); err != nil {
		return errors.Wrapf(err, "apply homing offset to servo %d", c.ID)
	}
	return nil
}

// LoadCalibrations reads a calibration file keyed by motor name. Entries
// without norm_mode are in degrees.
func LoadCalibrations(filename string) (map[int]*MotorCalibration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read calibration file")
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, errors.Wrap(err, "parse calibration file")
	}

	result := make(map[int]*MotorCalibration, len(byName))
	for name, entry := range byName {
		if entry == nil || string(bytes.TrimSpace(entry)) == "null" {
			return nil, fmt.Errorf("missing calibration for motor %s", name)
		}
		cal := &MotorCalibration{NormMode: NormDegrees}
		if err := json.Unmarshal(entry, cal); err != nil {
			return nil, errors.Wrapf(err, "parse calibration for motor %s", name)
		}
		if err := cal.Validate(); err != nil {
			return nil, errors.Wrapf(err, "invalid calibration for motor %s", name)
		}
		if _, exists := result[cal.ID]; exists {
			return nil, fmt.Errorf("duplicate servo ID %d found in calibration file", cal.ID)
		}
		result[cal.ID] = cal
	}
	return result, nil
}

// SaveCalibrations writes calibrations keyed by motor name. IDs without a
// name are stored as "motor_<id>".
func SaveCalibrations(filename string, calibrations map[int]*MotorCalibration, names map[int]string) error {
	byName := make(map[string]*MotorCalibration, len(calibrations))
	for id, cal := range calibrations {
		name, ok := names[id]
		if !ok {
			name = fmt.Sprintf("motor_%d", id)
		}
		byName[name] = cal
	}

	data, err := json.MarshalIndent(byName, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal calibrations")
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "write calibration file")
	}
	return nil
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
