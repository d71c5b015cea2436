package robot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grigorij-Dudnik/RoboCrew/scs"
)

func testCalibration(mode NormMode, driveMode int) *MotorCalibration {
	return &MotorCalibration{
		ID:           1,
		DriveMode:    driveMode,
		HomingOffset: -1470,
		RangeMin:     500,
		RangeMax:     3500,
		NormMode:     mode,
	}
}

func TestMotorCalibration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cal     MotorCalibration
		wantErr bool
	}{
		{"valid", *testCalibration(NormDegrees, 0), false},
		{"full range", *NewMotorCalibration(3), false},
		{"negative id", MotorCalibration{ID: -1, RangeMax: 100}, true},
		{"id above unicast", MotorCalibration{ID: 253, RangeMax: 100}, true},
		{"min equals max", MotorCalibration{ID: 1, RangeMin: 100, RangeMax: 100}, true},
		{"min above max", MotorCalibration{ID: 1, RangeMin: 200, RangeMax: 100}, true},
		{"max beyond 4095", MotorCalibration{ID: 1, RangeMax: 4096}, true},
		{"negative min", MotorCalibration{ID: 1, RangeMin: -1, RangeMax: 100}, true},
		{"offset too large", MotorCalibration{ID: 1, RangeMax: 100, HomingOffset: 2048}, true},
		{"offset too small", MotorCalibration{ID: 1, RangeMax: 100, HomingOffset: -2048}, true},
		{"unknown mode", MotorCalibration{ID: 1, RangeMax: 100, NormMode: 9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cal.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMotorCalibration_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		mode      NormMode
		driveMode int
		raw       int
		want      float64
	}{
		{"degrees center", NormDegrees, 0, 2000, 0},
		{"degrees max", NormDegrees, 0, 3500, 180},
		{"degrees min", NormDegrees, 0, 500, -180},
		{"degrees quarter", NormDegrees, 0, 2750, 90},
		{"degrees clamped", NormDegrees, 0, 4000, 180},
		{"degrees inverted", NormDegrees, 1, 2750, -90},
		{"range100 min", NormRange100, 0, 500, 0},
		{"range100 center", NormRange100, 0, 2000, 50},
		{"range100 max", NormRange100, 0, 3500, 100},
		{"range100 inverted", NormRange100, 1, 500, 100},
		{"rangeM100 quarter", NormRangeM100, 0, 2750, 50},
		{"rangeM100 inverted", NormRangeM100, 1, 2750, -50},
		{"raw", NormRaw, 0, 1234, 1234},
		{"raw inverted", NormRaw, 1, 1234, 2766},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testCalibration(tt.mode, tt.driveMode).Normalize(tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMotorCalibration_Denormalize(t *testing.T) {
	tests := []struct {
		name      string
		mode      NormMode
		driveMode int
		value     float64
		want      int
	}{
		{"degrees center", NormDegrees, 0, 0, 2000},
		{"degrees quarter", NormDegrees, 0, 90, 2750},
		{"degrees inverted", NormDegrees, 1, 90, 1250},
		{"degrees clamped", NormDegrees, 0, 400, 3500},
		{"range100 half", NormRange100, 0, 50, 2000},
		{"range100 inverted", NormRange100, 1, 0, 3500},
		{"rangeM100 min", NormRangeM100, 0, -100, 500},
		{"raw", NormRaw, 0, 1234, 1234},
		{"raw clamped to range", NormRaw, 0, 5000, 3500},
		{"raw inverted", NormRaw, 1, 1234, 2766},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testCalibration(tt.mode, tt.driveMode).Denormalize(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMotorCalibration_RoundTrip(t *testing.T) {
	for _, mode := range []NormMode{NormDegrees, NormRaw, NormRange100, NormRangeM100} {
		for _, driveMode := range []int{0, 1} {
			cal := testCalibration(mode, driveMode)
			for raw := cal.RangeMin; raw <= cal.RangeMax; raw += 250 {
				v, err := cal.Normalize(raw)
				require.NoError(t, err)
				back, err := cal.Denormalize(v)
				require.NoError(t, err)
				assert.Equal(t, raw, back, "mode %s drive %d raw %d", mode, driveMode, raw)
			}
		}
	}
}

func TestMotorCalibration_EqualRange(t *testing.T) {
	cal := &MotorCalibration{ID: 1, RangeMin: 100, RangeMax: 100}

	_, err := cal.Normalize(100)
	assert.Error(t, err)
	_, err = cal.Denormalize(0)
	assert.Error(t, err)
}

func TestMotorCalibration_String(t *testing.T) {
	assert.Equal(t, "ID 1: range[500-3500] degrees normal (offset: -1470)",
		testCalibration(NormDegrees, 0).String())
	assert.Equal(t, "ID 1: range[500-3500] 0..100 inverted (offset: -1470)",
		testCalibration(NormRange100, 1).String())
}

type fakeCorrectionWriter struct {
	id, correction int
	err            error
}

func (f *fakeCorrectionWriter) WritePosCorrection(id, correction int) (scs.StatusError, error) {
	f.id, f.correction = id, correction
	return 0, f.err
}

func TestMotorCalibration_ApplyHomingOffset(t *testing.T) {
	w := &fakeCorrectionWriter{}
	require.NoError(t, testCalibration(NormDegrees, 0).ApplyHomingOffset(w))
	assert.Equal(t, 1, w.id)
	assert.Equal(t, -1470, w.correction)

	w.err = &scs.CommError{Op: "write", ID: 1, Result: scs.RxTimeout}
	err := testCalibration(NormDegrees, 0).ApplyHomingOffset(w)
	require.Error(t, err)
	assert.True(t, scs.IsTimeout(err))
	assert.Contains(t, err.Error(), "apply homing offset to servo 1")
}

func TestSaveLoadCalibrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")

	cals := map[int]*MotorCalibration{
		1: testCalibration(NormDegrees, 0),
		2: {ID: 2, DriveMode: 1, HomingOffset: 12, RangeMin: 0, RangeMax: 4095, NormMode: NormRange100},
	}
	require.NoError(t, SaveCalibrations(path, cals, map[int]string{1: "shoulder_pan"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"shoulder_pan"`)
	assert.Contains(t, string(data), `"motor_2"`)

	loaded, err := LoadCalibrations(path)
	require.NoError(t, err)
	assert.Equal(t, cals, loaded)
}

func TestLoadCalibrations_DefaultsToDegrees(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	content := `{"pan": {"id": 5, "drive_mode": 0, "homing_offset": 0, "range_min": 100, "range_max": 3900}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loaded, err := LoadCalibrations(path)
	require.NoError(t, err)
	require.Contains(t, loaded, 5)
	assert.Equal(t, NormDegrees, loaded[5].NormMode)
}

func TestLoadCalibrations_NormModeNumbering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	content := `{
		"pan":  {"id": 1, "drive_mode": 0, "homing_offset": 0, "range_min": 0, "range_max": 4095, "norm_mode": 3},
		"grip": {"id": 6, "drive_mode": 0, "homing_offset": 0, "range_min": 0, "range_max": 4095, "norm_mode": 1},
		"lift": {"id": 2, "drive_mode": 0, "homing_offset": 0, "range_min": 0, "range_max": 4095, "norm_mode": 0}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loaded, err := LoadCalibrations(path)
	require.NoError(t, err)
	assert.Equal(t, NormDegrees, loaded[1].NormMode)
	assert.Equal(t, NormRange100, loaded[6].NormMode)
	assert.Equal(t, NormRaw, loaded[2].NormMode)

	deg, err := loaded[1].Normalize(4095)
	require.NoError(t, err)
	assert.InDelta(t, 180.0, deg, 1e-9)

	pct, err := loaded[6].Normalize(4095)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, pct, 1e-9)
}

func TestSaveCalibrations_RawRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	cals := map[int]*MotorCalibration{3: {ID: 3, RangeMin: 0, RangeMax: 4095, NormMode: NormRaw}}
	require.NoError(t, SaveCalibrations(path, cals, nil))

	loaded, err := LoadCalibrations(path)
	require.NoError(t, err)
	assert.Equal(t, NormRaw, loaded[3].NormMode)
}

func TestLoadCalibrations_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCalibrations(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = LoadCalibrations(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"a": {"id": 1, "range_min": 10, "range_max": 5}}`), 0644))
	_, err = LoadCalibrations(invalid)
	assert.ErrorContains(t, err, "invalid calibration for motor a")

	null := filepath.Join(dir, "null.json")
	require.NoError(t, os.WriteFile(null, []byte(`{"pan": null}`), 0644))
	_, err = LoadCalibrations(null)
	assert.ErrorContains(t, err, "missing calibration for motor pan")

	dup := filepath.Join(dir, "dup.json")
	content := `{"a": {"id": 1, "range_min": 0, "range_max": 10}, "b": {"id": 1, "range_min": 0, "range_max": 10}}`
	require.NoError(t, os.WriteFile(dup, []byte(content), 0644))
	_, err = LoadCalibrations(dup)
	assert.ErrorContains(t, err, "duplicate servo ID 1")
}

func BenchmarkNormalize(b *testing.B) {
	cal := testCalibration(NormDegrees, 0)
	for i := 0; i < b.N; i++ {
		_, _ = cal.Normalize(500 + i%3000)
	}
}
