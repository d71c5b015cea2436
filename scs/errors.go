package scs

import (
	"errors"
	"fmt"
	"strings"
)

// StatusError is the error byte carried by a unicast response.
// The driver passes it through without interpreting it.
type StatusError byte

// Status error flags returned by servos.
const (
	ErrVoltage     StatusError = 1 << 0
	ErrAngle       StatusError = 1 << 1
	ErrOverheat    StatusError = 1 << 2
	ErrOvercurrent StatusError = 1 << 3
	ErrOverload    StatusError = 1 << 5
)

func (e StatusError) Error() string {
	if e == 0 {
		return "no error"
	}

	var flags []string
	if e&ErrVoltage != 0 {
		flags = append(flags, "voltage")
	}
	if e&ErrAngle != 0 {
		flags = append(flags, "angle")
	}
	if e&ErrOverheat != 0 {
		flags = append(flags, "overheat")
	}
	if e&ErrOvercurrent != 0 {
		flags = append(flags, "overcurrent")
	}
	if e&ErrOverload != 0 {
		flags = append(flags, "overload")
	}
	if rest := e &^ (ErrVoltage | ErrAngle | ErrOverheat | ErrOvercurrent | ErrOverload); rest != 0 {
		flags = append(flags, fmt.Sprintf("0x%02X", byte(rest)))
	}

	return "servo status: " + strings.Join(flags, ", ")
}

// HasError returns true if any error flag is set.
func (e StatusError) HasError() bool {
	return e != 0
}

// Sentinel errors.
var (
	ErrOutOfRange   = errors.New("value out of range")
	ErrFrameTooLong = errors.New("frame exceeds maximum length")
	ErrNotConnected = errors.New("port is not open")
	ErrIDUnverified = errors.New("servo ID not confirmed after change")
)

// CommError reports an exchange that did not complete.
type CommError struct {
	Op     string // Operation that failed (e.g., "read_position")
	ID     int    // Target servo ID, -1 for broadcast
	Result CommResult
}

func (e *CommError) Error() string {
	if e.ID < 0 {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Result)
	}
	return fmt.Sprintf("servo %d %s failed: %s", e.ID, e.Op, e.Result)
}

// RangeError reports a caller value rejected before anything was sent.
type RangeError struct {
	Op    string
	Name  string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s must be %d..%d, got %d", e.Op, e.Name, e.Min, e.Max, e.Value)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

// IDChangeError describes a partially failed ID change. The servo may be
// unlocked and it may answer on either address.
type IDChangeError struct {
	OldID       int
	NewID       int
	WriteErr    error // ID register write at OldID
	LockErr     error // re-lock at NewID (or OldID when the write failed)
	FallbackErr error // re-lock at OldID after the NewID lock failed
	VerifyErr   error // read-back of the ID register at NewID
	Verified    bool  // ID register read back from NewID matched
}

func (e *IDChangeError) Error() string {
	var parts []string
	if e.WriteErr != nil {
		parts = append(parts, "write: "+e.WriteErr.Error())
	}
	if e.LockErr != nil {
		parts = append(parts, "lock: "+e.LockErr.Error())
	}
	if e.FallbackErr != nil {
		parts = append(parts, "fallback lock: "+e.FallbackErr.Error())
	}
	if e.VerifyErr != nil {
		parts = append(parts, "verify: "+e.VerifyErr.Error())
	}
	if len(parts) == 0 && !e.Verified {
		parts = append(parts, ErrIDUnverified.Error())
	}
	return fmt.Sprintf("change servo ID %d -> %d: %s", e.OldID, e.NewID, strings.Join(parts, "; "))
}

func (e *IDChangeError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.WriteErr, e.LockErr, e.FallbackErr, e.VerifyErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 && !e.Verified {
		errs = append(errs, ErrIDUnverified)
	}
	return errs
}

// ResultOf extracts the CommResult from an error chain, if present.
func ResultOf(err error) (CommResult, bool) {
	var commErr *CommError
	if errors.As(err, &commErr) {
		return commErr.Result, true
	}
	return Success, false
}

// IsTimeout returns true if nothing answered before the response deadline.
func IsTimeout(err error) bool {
	r, ok := ResultOf(err)
	return ok && r == RxTimeout
}

// IsCorrupt returns true if bytes arrived but did not form a valid response.
func IsCorrupt(err error) bool {
	r, ok := ResultOf(err)
	return ok && r == RxCorrupt
}

// IsOutOfRange returns true if the error is a rejected caller value.
func IsOutOfRange(err error) bool {
	return errors.Is(err, ErrOutOfRange)
}
