package scs

import (
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Controller is the register-level device API. Values are validated before
// any byte is sent; exchange failures come back as *CommError and device
// status bits are returned alongside values, never as errors.
type Controller struct {
	bus    *Bus
	logger *zap.Logger
}

// NewController creates a controller and its bus.
func NewController(cfg BusConfig) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{
		bus:    NewBus(cfg),
		logger: cfg.Logger,
	}
}

// Connect opens the serial device. It returns false on failure.
func (c *Controller) Connect(port string, baudRate int) bool {
	return c.bus.Open(port, baudRate)
}

// Disconnect closes the serial device.
func (c *Controller) Disconnect() error {
	return c.bus.Close()
}

// Connected reports whether a port is open.
func (c *Controller) Connected() bool {
	return c.bus.Port().IsOpen()
}

// Bus returns the underlying bus.
func (c *Controller) Bus() *Bus {
	return c.bus
}

// Servo returns a handle bound to id.
func (c *Controller) Servo(id int) *Servo {
	return &Servo{ctrl: c, id: id}
}

// Ping checks that a device answers at id.
func (c *Controller) Ping(id int) (StatusError, error) {
	if err := checkID("ping", id); err != nil {
		return 0, err
	}
	status, result := c.bus.Ping(byte(id))
	if result != Success {
		return 0, &CommError{Op: "ping", ID: id, Result: result}
	}
	return status, nil
}

// Scan pings every ID from first to last and returns those that answered.
func (c *Controller) Scan(first, last int) ([]int, error) {
	if err := checkRange("scan", "first", first, 0, MaxServoID); err != nil {
		return nil, err
	}
	if err := checkRange("scan", "last", last, first, MaxServoID); err != nil {
		return nil, err
	}

	var found []int
	for id := first; id <= last; id++ {
		_, result := c.bus.Ping(byte(id))
		switch result {
		case Success:
			found = append(found, id)
		case RxTimeout, RxCorrupt:
		default:
			return found, &CommError{Op: "scan", ID: id, Result: result}
		}
	}
	return found, nil
}

// Position

// ReadPosition reads the present position.
func (c *Controller) ReadPosition(id int) (int, StatusError, error) {
	v, status, err := c.read("read_position", id, RegPresentPosition)
	return int(v), status, err
}

// WritePosition sets the goal position, 0..4095.
func (c *Controller) WritePosition(id, position int) (StatusError, error) {
	if err := checkRange("write_position", "position", position, 0, MaxPosition); err != nil {
		return 0, err
	}
	return c.write("write_position", id, RegGoalPosition, uint16(position))
}

// WriteTorqueEnable switches holding torque on or off.
func (c *Controller) WriteTorqueEnable(id int, enable bool) (StatusError, error) {
	var v uint16
	if enable {
		v = 1
	}
	return c.write("write_torque_enable", id, RegTorqueEnable, v)
}

// WriteAcceleration sets the acceleration, clamped to 0..254.
func (c *Controller) WriteAcceleration(id, acceleration int) (StatusError, error) {
	return c.write("write_acceleration", id, RegAcceleration, uint16(clamp(acceleration, 0, MaxAcceleration)))
}

// Mode

// SetWheelMode switches the servo to continuous rotation.
func (c *Controller) SetWheelMode(id int) (StatusError, error) {
	return c.protectedWrite("set_wheel_mode", id, RegMode, ModeWheel)
}

// SetPositionMode switches the servo to position control.
func (c *Controller) SetPositionMode(id int) (StatusError, error) {
	return c.protectedWrite("set_position_mode", id, RegMode, ModePosition)
}

// ReadMode reads the operating mode.
func (c *Controller) ReadMode(id int) (int, StatusError, error) {
	v, status, err := c.read("read_mode", id, RegMode)
	return int(v), status, err
}

// Speed

// WriteWheelSpeed sets the signed wheel speed, clamped to -10000..10000.
func (c *Controller) WriteWheelSpeed(id, speed int) (StatusError, error) {
	raw := EncodeSignMagnitude(clamp(speed, -MaxSpeed, MaxSpeed), RegGoalSpeed.SignBit)
	return c.write("write_wheel_speed", id, RegGoalSpeed, raw)
}

// WriteGoalSpeed sets the position-mode travel speed, clamped to 0..10000.
func (c *Controller) WriteGoalSpeed(id, speed int) (StatusError, error) {
	return c.write("write_goal_speed", id, RegGoalSpeed, uint16(clamp(speed, 0, MaxSpeed)))
}

// Position correction

// ReadPosCorrection reads the signed position correction.
func (c *Controller) ReadPosCorrection(id int) (int, StatusError, error) {
	v, status, err := c.read("read_pos_correction", id, RegPositionCorrection)
	if err != nil {
		return 0, status, err
	}
	return DecodeSignMagnitude(v, RegPositionCorrection.SignBit), status, nil
}

// WritePosCorrection sets the position correction, -2047..2047.
func (c *Controller) WritePosCorrection(id, correction int) (StatusError, error) {
	const op = "write_pos_correction"
	if err := checkRange(op, "correction", correction, -MaxPosCorrection, MaxPosCorrection); err != nil {
		return 0, err
	}
	return c.protectedWrite(op, id, RegPositionCorrection, EncodeSignMagnitude(correction, RegPositionCorrection.SignBit))
}

// Baud rate

// ReadBaudIndex reads the baud rate index, see BaudRates.
func (c *Controller) ReadBaudIndex(id int) (int, StatusError, error) {
	v, status, err := c.read("read_baud_index", id, RegBaudRate)
	return int(v), status, err
}

// SetBaudIndex sets the baud rate index, 0..7. The servo answers at the new
// rate from the next frame on.
func (c *Controller) SetBaudIndex(id, index int) (StatusError, error) {
	const op = "set_baud_index"
	if err := checkRange(op, "index", index, 0, MaxBaudIndex); err != nil {
		return 0, err
	}
	return c.protectedWrite(op, id, RegBaudRate, uint16(index))
}

// Position limits

// ReadMinPosLimit reads the minimum position limit.
func (c *Controller) ReadMinPosLimit(id int) (int, StatusError, error) {
	v, status, err := c.read("read_min_pos_limit", id, RegMinPositionLimit)
	return int(v), status, err
}

// ReadMaxPosLimit reads the maximum position limit.
func (c *Controller) ReadMaxPosLimit(id int) (int, StatusError, error) {
	v, status, err := c.read("read_max_pos_limit", id, RegMaxPositionLimit)
	return int(v), status, err
}

// WriteMinPosLimit sets the minimum position limit, 0..4095.
func (c *Controller) WriteMinPosLimit(id, limit int) (StatusError, error) {
	const op = "write_min_pos_limit"
	if err := checkRange(op, "limit", limit, 0, MaxPosition); err != nil {
		return 0, err
	}
	return c.protectedWrite(op, id, RegMinPositionLimit, uint16(limit))
}

// WriteMaxPosLimit sets the maximum position limit, 0..4095.
func (c *Controller) WriteMaxPosLimit(id, limit int) (StatusError, error) {
	const op = "write_max_pos_limit"
	if err := checkRange(op, "limit", limit, 0, MaxPosition); err != nil {
		return 0, err
	}
	return c.protectedWrite(op, id, RegMaxPositionLimit, uint16(limit))
}

// SetServoID moves a servo from oldID to newID, both 1..252.
//
// The servo is unlocked at oldID, the ID register is written, then the servo
// is locked at newID. If that lock fails the servo is locked at oldID
// instead. A successful lock is confirmed by reading the ID register back at
// newID. Any failure after the unlock is reported as *IDChangeError.
func (c *Controller) SetServoID(oldID, newID int) error {
	const op = "set_servo_id"
	if err := checkRange(op, "old id", oldID, MinConfigurableID, MaxServoID); err != nil {
		return err
	}
	if err := checkRange(op, "new id", newID, MinConfigurableID, MaxServoID); err != nil {
		return err
	}
	if oldID == newID {
		return nil
	}

	if _, err := c.write("unlock", oldID, RegLock, 0); err != nil {
		return err
	}

	changeErr := &IDChangeError{OldID: oldID, NewID: newID}

	if _, err := c.write(op, oldID, RegID, uint16(newID)); err != nil {
		changeErr.WriteErr = err
		_, changeErr.LockErr = c.write("lock", oldID, RegLock, 1)
		return changeErr
	}

	if _, err := c.write("lock", newID, RegLock, 1); err != nil {
		changeErr.LockErr = err
		c.logger.Warn("lock at new ID failed, falling back to old ID",
			zap.Int("old_id", oldID), zap.Int("new_id", newID), zap.Error(err))
		_, changeErr.FallbackErr = c.write("lock", oldID, RegLock, 1)
		return changeErr
	}

	got, _, err := c.read("verify_id", newID, RegID)
	if err != nil {
		changeErr.VerifyErr = err
		return changeErr
	}
	if int(got) != newID {
		return changeErr
	}
	return nil
}

// Sync writes

// SyncWritePositions sets goal positions of several servos in one broadcast
// frame. Entries are sent in ascending ID order.
func (c *Controller) SyncWritePositions(positions map[int]int) error {
	const op = "sync_write_positions"
	group := NewGroupSyncWrite(c.bus, RegGoalPosition.Address, RegGoalPosition.Size)
	for _, id := range sortedIDs(positions) {
		pos := positions[id]
		if err := checkID(op, id); err != nil {
			return err
		}
		if err := checkRange(op, "position", pos, 0, MaxPosition); err != nil {
			return err
		}
		group.Add(byte(id), c.bus.Codec().EncodeWord(uint16(pos)))
	}
	return c.sendGroup(op, group)
}

// SyncWriteWheelSpeeds sets signed wheel speeds of several servos in one
// broadcast frame. Speeds are clamped to -10000..10000.
func (c *Controller) SyncWriteWheelSpeeds(speeds map[int]int) error {
	const op = "sync_write_wheel_speeds"
	group := NewGroupSyncWrite(c.bus, RegGoalSpeed.Address, RegGoalSpeed.Size)
	for _, id := range sortedIDs(speeds) {
		if err := checkID(op, id); err != nil {
			return err
		}
		raw := EncodeSignMagnitude(clamp(speeds[id], -MaxSpeed, MaxSpeed), RegGoalSpeed.SignBit)
		group.Add(byte(id), c.bus.Codec().EncodeWord(raw))
	}
	return c.sendGroup(op, group)
}

func (c *Controller) sendGroup(op string, group *GroupSyncWrite) error {
	if result := group.Send(); result != Success {
		return &CommError{Op: op, ID: -1, Result: result}
	}
	return nil
}

// Internal helpers

func (c *Controller) read(op string, id int, reg Register) (uint16, StatusError, error) {
	if err := checkID(op, id); err != nil {
		return 0, 0, err
	}
	data, status, result := c.bus.Read(byte(id), reg.Address, reg.Size)
	if result != Success {
		return 0, 0, &CommError{Op: op, ID: id, Result: result}
	}
	return c.bus.Codec().DecodeValue(data), status, nil
}

func (c *Controller) write(op string, id int, reg Register, value uint16) (StatusError, error) {
	if err := checkID(op, id); err != nil {
		return 0, err
	}
	status, result := c.bus.Write(byte(id), reg.Address, c.bus.Codec().EncodeValue(value, reg.Size))
	if result != Success {
		return 0, &CommError{Op: op, ID: id, Result: result}
	}
	return status, nil
}

// protectedWrite brackets a write to an EEPROM register with unlock and
// lock. The lock is attempted whenever the unlock went through.
func (c *Controller) protectedWrite(op string, id int, reg Register, value uint16) (status StatusError, err error) {
	if _, err := c.write("unlock", id, RegLock, 0); err != nil {
		return 0, err
	}
	defer func() {
		if _, lockErr := c.write("lock", id, RegLock, 1); lockErr != nil {
			err = multierr.Append(err, lockErr)
		}
	}()

	return c.write(op, id, reg, value)
}

func checkID(op string, id int) error {
	return checkRange(op, "id", id, 0, MaxServoID)
}

func checkRange(op, name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &RangeError{Op: op, Name: name, Value: v, Min: lo, Max: hi}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func sortedIDs(m map[int]int) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
