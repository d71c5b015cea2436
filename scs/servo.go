package scs

// Servo is a handle for one device on a Controller.
type Servo struct {
	ctrl *Controller
	id   int
}

// ID returns the servo's ID.
func (s *Servo) ID() int {
	return s.id
}

// Ping verifies the servo answers.
func (s *Servo) Ping() (StatusError, error) {
	return s.ctrl.Ping(s.id)
}

// Position reads the present position.
func (s *Servo) Position() (int, StatusError, error) {
	return s.ctrl.ReadPosition(s.id)
}

// SetPosition commands a goal position.
func (s *Servo) SetPosition(position int) (StatusError, error) {
	return s.ctrl.WritePosition(s.id, position)
}

// SetTorqueEnabled enables or disables torque.
func (s *Servo) SetTorqueEnabled(enabled bool) (StatusError, error) {
	return s.ctrl.WriteTorqueEnable(s.id, enabled)
}

// SetAcceleration sets the acceleration.
func (s *Servo) SetAcceleration(acceleration int) (StatusError, error) {
	return s.ctrl.WriteAcceleration(s.id, acceleration)
}

// Mode reads the operating mode.
func (s *Servo) Mode() (int, StatusError, error) {
	return s.ctrl.ReadMode(s.id)
}

// SetWheelMode switches to continuous rotation.
func (s *Servo) SetWheelMode() (StatusError, error) {
	return s.ctrl.SetWheelMode(s.id)
}

// SetPositionMode switches to position control.
func (s *Servo) SetPositionMode() (StatusError, error) {
	return s.ctrl.SetPositionMode(s.id)
}

// SetWheelSpeed sets the signed wheel speed.
func (s *Servo) SetWheelSpeed(speed int) (StatusError, error) {
	return s.ctrl.WriteWheelSpeed(s.id, speed)
}

// SetGoalSpeed sets the position-mode travel speed.
func (s *Servo) SetGoalSpeed(speed int) (StatusError, error) {
	return s.ctrl.WriteGoalSpeed(s.id, speed)
}

// PosCorrection reads the position correction.
func (s *Servo) PosCorrection() (int, StatusError, error) {
	return s.ctrl.ReadPosCorrection(s.id)
}

// SetPosCorrection writes the position correction.
func (s *Servo) SetPosCorrection(correction int) (StatusError, error) {
	return s.ctrl.WritePosCorrection(s.id, correction)
}

// BaudIndex reads the baud rate index.
func (s *Servo) BaudIndex() (int, StatusError, error) {
	return s.ctrl.ReadBaudIndex(s.id)
}

// SetBaudIndex writes the baud rate index.
func (s *Servo) SetBaudIndex(index int) (StatusError, error) {
	return s.ctrl.SetBaudIndex(s.id, index)
}

// Limits reads the minimum and maximum position limits.
func (s *Servo) Limits() (minPos, maxPos int, err error) {
	if minPos, _, err = s.ctrl.ReadMinPosLimit(s.id); err != nil {
		return 0, 0, err
	}
	if maxPos, _, err = s.ctrl.ReadMaxPosLimit(s.id); err != nil {
		return 0, 0, err
	}
	return minPos, maxPos, nil
}

// SetLimits writes both position limits.
func (s *Servo) SetLimits(minPos, maxPos int) error {
	if minPos > maxPos {
		return &RangeError{Op: "set_limits", Name: "min", Value: minPos, Min: 0, Max: maxPos}
	}
	if _, err := s.ctrl.WriteMinPosLimit(s.id, minPos); err != nil {
		return err
	}
	_, err := s.ctrl.WriteMaxPosLimit(s.id, maxPos)
	return err
}

// SetID moves the servo to a new ID. The handle follows the servo when the
// change is confirmed.
func (s *Servo) SetID(newID int) error {
	if err := s.ctrl.SetServoID(s.id, newID); err != nil {
		return err
	}
	s.id = newID
	return nil
}
