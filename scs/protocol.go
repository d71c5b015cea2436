// Package scs drives Feetech SCS/STS serial bus servos: frame building and
// parsing, the half-duplex request/response exchange, broadcast sync writes
// and a register-level device API.
package scs

import (
	"encoding/binary"
	"fmt"
)

// Protocol selects the device family, which fixes the byte order of
// multi-byte register values.
type Protocol int

// Protocol versions.
const (
	ProtocolSTS Protocol = iota // STS/SMS series: little-endian
	ProtocolSCS                 // SCS series: big-endian
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSTS:
		return "sts"
	case ProtocolSCS:
		return "scs"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// ParseProtocol maps "sts" or "scs" to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "sts", "STS", "":
		return ProtocolSTS, nil
	case "scs", "SCS":
		return ProtocolSCS, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// Instruction codes.
const (
	InstPing      byte = 0x01
	InstRead      byte = 0x02
	InstWrite     byte = 0x03
	InstSyncWrite byte = 0x83
)

// Addressing limits.
const (
	BroadcastID = 0xFE
	MaxServoID  = 0xFC
)

// Frame size limits.
const (
	MaxFrameLength = 250
	MinFrameLength = 6
)

const headerByte = 0xFF

// Frame is one complete header-to-checksum byte sequence.
type Frame []byte

// ID returns the device ID field.
func (f Frame) ID() byte { return f[2] }

// Length returns the declared length field.
func (f Frame) Length() int { return int(f[3]) }

// Instruction returns the instruction byte of a request frame.
func (f Frame) Instruction() byte { return f[4] }

// Status returns the error byte of a response frame.
func (f Frame) Status() StatusError { return StatusError(f[4]) }

// Params returns the bytes between the instruction/error field and the checksum.
func (f Frame) Params() []byte { return f[5 : len(f)-1] }

// Checksum returns the trailing checksum byte.
func (f Frame) Checksum() byte { return f[len(f)-1] }

// Valid reports whether the frame is well formed and its checksum matches.
func (f Frame) Valid() bool {
	if len(f) < MinFrameLength || f[0] != headerByte || f[1] != headerByte {
		return false
	}
	if f.Length()+4 != len(f) {
		return false
	}
	return checksum(f[2:len(f)-1]) == f.Checksum()
}

func (f Frame) String() string {
	return fmt.Sprintf("% X", []byte(f))
}

// Codec builds and parses frames for one device family. It holds no I/O
// state and is safe to share.
type Codec struct {
	protocol  Protocol
	byteOrder binary.ByteOrder
}

// NewCodec creates a codec for the given protocol.
func NewCodec(p Protocol) *Codec {
	c := &Codec{protocol: p}
	if p == ProtocolSCS {
		c.byteOrder = binary.BigEndian
	} else {
		c.byteOrder = binary.LittleEndian
	}
	return c
}

// Protocol returns the device family this codec was built for.
func (c *Codec) Protocol() Protocol {
	return c.protocol
}

// ByteOrder returns the byte order for multi-byte values.
func (c *Codec) ByteOrder() binary.ByteOrder {
	return c.byteOrder
}

// EncodeWord converts a 16-bit value to bytes in protocol byte order.
func (c *Codec) EncodeWord(value uint16) []byte {
	buf := make([]byte, 2)
	c.byteOrder.PutUint16(buf, value)
	return buf
}

// DecodeWord converts bytes to a 16-bit value using protocol byte order.
func (c *Codec) DecodeWord(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return c.byteOrder.Uint16(data)
}

// EncodeValue encodes v into a register of the given width.
func (c *Codec) EncodeValue(v uint16, size int) []byte {
	if size == 1 {
		return []byte{byte(v)}
	}
	return c.EncodeWord(v)
}

// DecodeValue decodes a 1 or 2 byte register value.
func (c *Codec) DecodeValue(data []byte) uint16 {
	switch len(data) {
	case 0:
		return 0
	case 1:
		return uint16(data[0])
	default:
		return c.DecodeWord(data)
	}
}

// BuildFrame lays out a complete instruction frame. It fails without
// producing any bytes when the frame would exceed MaxFrameLength.
func (c *Codec) BuildFrame(id, instruction byte, params []byte) (Frame, error) {
	total := MinFrameLength + len(params)
	if total > MaxFrameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLong, total)
	}

	buf := make(Frame, 0, total)
	buf = append(buf, headerByte, headerByte, id, byte(len(params)+2), instruction)
	buf = append(buf, params...)
	buf = append(buf, checksum(buf[2:]))

	return buf, nil
}

// PingFrame creates a ping instruction frame.
func (c *Codec) PingFrame(id byte) (Frame, error) {
	return c.BuildFrame(id, InstPing, nil)
}

// ReadFrame creates a read instruction frame.
func (c *Codec) ReadFrame(id, address byte, length int) (Frame, error) {
	return c.BuildFrame(id, InstRead, []byte{address, byte(length)})
}

// WriteFrame creates a write instruction frame.
func (c *Codec) WriteFrame(id, address byte, data []byte) (Frame, error) {
	return c.BuildFrame(id, InstWrite, writeParams(address, data))
}

// SyncWriteFrame wraps a group payload into a broadcast sync write frame.
func (c *Codec) SyncWriteFrame(address byte, width int, payload []byte) (Frame, error) {
	params := make([]byte, 0, 2+len(payload))
	params = append(params, address, byte(width))
	params = append(params, payload...)
	return c.BuildFrame(BroadcastID, InstSyncWrite, params)
}

func writeParams(address byte, data []byte) []byte {
	params := make([]byte, 1+len(data))
	params[0] = address
	copy(params[1:], data)
	return params
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum
}
