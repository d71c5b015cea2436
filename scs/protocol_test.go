package scs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_PingFrame(t *testing.T) {
	c := NewCodec(ProtocolSTS)

	// Checksum = ~(01 + 02 + 01) = ~04 = FB
	frame, err := c.PingFrame(0x01)
	require.NoError(t, err)
	assert.Equal(t, Frame{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}, frame)
}

func TestCodec_ReadFrame(t *testing.T) {
	c := NewCodec(ProtocolSTS)

	// Read 2 bytes from present position (0x38) on servo 1
	frame, err := c.ReadFrame(0x01, RegPresentPosition.Address, 2)
	require.NoError(t, err)
	assert.Equal(t, Frame{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x38, 0x02, 0xBE}, frame)
}

func TestCodec_WriteFrame(t *testing.T) {
	c := NewCodec(ProtocolSTS)

	// Goal position 256 on servo 1, checksum over 01 05 03 2A 00 01
	frame, err := c.WriteFrame(0x01, RegGoalPosition.Address, c.EncodeWord(256))
	require.NoError(t, err)
	assert.Equal(t, Frame{0xFF, 0xFF, 0x01, 0x05, 0x03, 0x2A, 0x00, 0x01, 0xCB}, frame)

	// Broadcast ID write
	frame, err = c.WriteFrame(BroadcastID, RegID.Address, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, Frame{0xFF, 0xFF, 0xFE, 0x04, 0x03, 0x05, 0x01, 0xF4}, frame)
}

func TestCodec_SyncWriteFrame(t *testing.T) {
	c := NewCodec(ProtocolSTS)

	payload := []byte{0x07, 0x00, 0x02, 0x09, 0x00, 0x04}
	frame, err := c.SyncWriteFrame(RegGoalPosition.Address, 2, payload)
	require.NoError(t, err)

	expected := Frame{0xFF, 0xFF, 0xFE, 0x0A, 0x83, 0x2A, 0x02, 0x07, 0x00, 0x02, 0x09, 0x00, 0x04, 0x32}
	assert.Equal(t, expected, frame)
	assert.True(t, frame.Valid())
}

func TestCodec_BuildFrameLength(t *testing.T) {
	c := NewCodec(ProtocolSTS)

	frame, err := c.BuildFrame(1, InstWrite, make([]byte, MaxFrameLength-MinFrameLength))
	require.NoError(t, err)
	assert.Len(t, frame, MaxFrameLength)
	assert.Equal(t, MaxFrameLength-4, frame.Length())

	frame, err = c.BuildFrame(1, InstWrite, make([]byte, MaxFrameLength-MinFrameLength+1))
	assert.ErrorIs(t, err, ErrFrameTooLong)
	assert.Nil(t, frame)
}

func TestFrame_Accessors(t *testing.T) {
	// Response to read position: 2048, error byte 0x20
	f := Frame{0xFF, 0xFF, 0x01, 0x04, 0x20, 0x00, 0x08, 0xD2}

	assert.True(t, f.Valid())
	assert.Equal(t, byte(1), f.ID())
	assert.Equal(t, 4, f.Length())
	assert.Equal(t, ErrOverload, f.Status())
	assert.Equal(t, []byte{0x00, 0x08}, f.Params())
	assert.Equal(t, "FF FF 01 04 20 00 08 D2", f.String())

	bad := Frame{0xFF, 0xFF, 0x01, 0x04, 0x20, 0x00, 0x08, 0xD3}
	assert.False(t, bad.Valid())
}

func TestCodec_ByteOrder(t *testing.T) {
	sts := NewCodec(ProtocolSTS)
	scs := NewCodec(ProtocolSCS)

	assert.Equal(t, []byte{0x00, 0x02}, sts.EncodeWord(512))
	assert.Equal(t, []byte{0x02, 0x00}, scs.EncodeWord(512))
	assert.Equal(t, uint16(1304), sts.DecodeWord([]byte{0x18, 0x05}))
	assert.Equal(t, uint16(1304), scs.DecodeWord([]byte{0x05, 0x18}))
	assert.Equal(t, uint16(0), sts.DecodeWord([]byte{0x01}))

	// Two codecs in one process keep their own order.
	assert.Equal(t, ProtocolSTS, sts.Protocol())
	assert.Equal(t, ProtocolSCS, scs.Protocol())
}

func TestCodec_Values(t *testing.T) {
	c := NewCodec(ProtocolSTS)

	assert.Equal(t, []byte{0x07}, c.EncodeValue(7, 1))
	assert.Equal(t, []byte{0xFF, 0x0F}, c.EncodeValue(4095, 2))
	assert.Equal(t, uint16(7), c.DecodeValue([]byte{0x07}))
	assert.Equal(t, uint16(4095), c.DecodeValue([]byte{0xFF, 0x0F}))
	assert.Equal(t, uint16(0), c.DecodeValue(nil))
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("scs")
	require.NoError(t, err)
	assert.Equal(t, ProtocolSCS, p)

	p, err = ParseProtocol("")
	require.NoError(t, err)
	assert.Equal(t, ProtocolSTS, p)

	_, err = ParseProtocol("dynamixel")
	assert.Error(t, err)
}
