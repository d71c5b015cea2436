package scs

// EncodeSignMagnitude stores |value| in the bits below signBit and sets
// signBit for negative values. Magnitudes wider than signBit are truncated.
func EncodeSignMagnitude(value, signBit int) uint16 {
	if signBit == 0 {
		return uint16(value)
	}

	mask := 1<<signBit - 1
	if value < 0 {
		return uint16((-value)&mask | 1<<signBit)
	}
	return uint16(value & mask)
}

// DecodeSignMagnitude is the inverse of EncodeSignMagnitude. Bits above
// signBit are ignored.
func DecodeSignMagnitude(raw uint16, signBit int) int {
	if signBit == 0 {
		return int(raw)
	}

	mask := 1<<signBit - 1
	magnitude := int(raw) & mask
	if int(raw)&(1<<signBit) != 0 {
		return -magnitude
	}
	return magnitude
}
