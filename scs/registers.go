package scs

// Register describes one entry of the servo control table.
type Register struct {
	Name    string
	Address byte
	Size    int // 1 or 2 bytes
	// SignBit is the sign bit of a sign-magnitude register, 0 for unsigned.
	SignBit int
}

// Control table entries used by the device API.
var (
	RegID                 = Register{Name: "id", Address: 5, Size: 1}
	RegBaudRate           = Register{Name: "baud_rate", Address: 6, Size: 1}
	RegMinPositionLimit   = Register{Name: "min_position_limit", Address: 9, Size: 2}
	RegMaxPositionLimit   = Register{Name: "max_position_limit", Address: 11, Size: 2}
	RegPositionCorrection = Register{Name: "position_correction", Address: 31, Size: 2, SignBit: 11}
	RegMode               = Register{Name: "mode", Address: 33, Size: 1}
	RegTorqueEnable       = Register{Name: "torque_enable", Address: 40, Size: 1}
	RegAcceleration       = Register{Name: "acceleration", Address: 41, Size: 1}
	RegGoalPosition       = Register{Name: "goal_position", Address: 42, Size: 2}
	RegGoalSpeed          = Register{Name: "goal_speed", Address: 46, Size: 2, SignBit: 15}
	RegLock               = Register{Name: "lock", Address: 55, Size: 1}
	RegPresentPosition    = Register{Name: "present_position", Address: 56, Size: 2}
)

var registersByName = map[string]Register{}

func init() {
	for _, r := range []Register{
		RegID, RegBaudRate, RegMinPositionLimit, RegMaxPositionLimit,
		RegPositionCorrection, RegMode, RegTorqueEnable, RegAcceleration,
		RegGoalPosition, RegGoalSpeed, RegLock, RegPresentPosition,
	} {
		registersByName[r.Name] = r
	}
}

// RegisterByName looks up a control table entry.
func RegisterByName(name string) (Register, bool) {
	r, ok := registersByName[name]
	return r, ok
}

// Operating modes stored in RegMode.
const (
	ModePosition = 0
	ModeWheel    = 1
)

// Value ranges accepted by the device API.
const (
	MaxPosition       = 4095
	MaxAcceleration   = 254
	MaxSpeed          = 10000
	MaxPosCorrection  = 2047
	MaxBaudIndex      = 7
	MinConfigurableID = 1
)

// BaudRates lists line speeds in baud index order.
var BaudRates = []int{
	1000000, // 0
	500000,  // 1
	250000,  // 2
	128000,  // 3
	115200,  // 4
	76800,   // 5
	57600,   // 6
	38400,   // 7
}

// BaudIndex returns the index of a line speed in BaudRates.
func BaudIndex(baudRate int) (int, bool) {
	for i, b := range BaudRates {
		if b == baudRate {
			return i, true
		}
	}
	return 0, false
}
