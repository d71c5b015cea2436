package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/Grigorij-Dudnik/RoboCrew/internal/config"
	"github.com/Grigorij-Dudnik/RoboCrew/scs"
	"github.com/Grigorij-Dudnik/RoboCrew/transports"
)

// servoSim answers frames like a set of STS servos with flat register files.
type servoSim struct {
	mu   sync.Mutex
	regs map[byte]*[256]byte
}

func newServoSim(ids ...byte) *servoSim {
	s := &servoSim{regs: make(map[byte]*[256]byte)}
	for _, id := range ids {
		r := &[256]byte{}
		r[scs.RegID.Address] = id
		r[scs.RegLock.Address] = 1
		r[scs.RegMaxPositionLimit.Address] = 0xFF
		r[scs.RegMaxPositionLimit.Address+1] = 0x0F
		r[scs.RegPresentPosition.Address] = 0x00
		r[scs.RegPresentPosition.Address+1] = 0x08
		s.regs[id] = r
	}
	return s
}

func (s *servoSim) word(id byte, addr byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.regs[id]
	return int(r[addr]) | int(r[addr+1])<<8
}

func (s *servoSim) has(id byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.regs[id]
	return ok
}

func (s *servoSim) respond(frame []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, inst, params := frame[2], frame[4], frame[5:len(frame)-1]
	if inst == scs.InstSyncWrite {
		addr, width := params[0], int(params[1])
		for p := params[2:]; len(p) >= width+1; p = p[width+1:] {
			if r, ok := s.regs[p[0]]; ok {
				copy(r[addr:], p[1:width+1])
			}
		}
		return nil
	}

	r, ok := s.regs[id]
	if !ok {
		return nil
	}
	switch inst {
	case scs.InstPing:
		return reply(id, nil)
	case scs.InstRead:
		addr, n := params[0], params[1]
		return reply(id, append([]byte(nil), r[addr:addr+n]...))
	case scs.InstWrite:
		addr := params[0]
		copy(r[addr:], params[1:])
		if addr == scs.RegID.Address && params[1] != id {
			delete(s.regs, id)
			s.regs[params[1]] = r
		}
		return reply(id, nil)
	}
	return nil
}

func reply(id byte, params []byte) []byte {
	out := []byte{0xFF, 0xFF, id, byte(len(params) + 2), 0}
	out = append(out, params...)
	var sum byte
	for _, b := range out[2:] {
		sum += b
	}
	return append(out, ^sum)
}

func newTestApp(t *testing.T, sim *servoSim) (*app, *bytes.Buffer) {
	t.Helper()
	t.Setenv("SCS_CONFIG", "")
	cfg, err := cfgpkg.Load("")
	require.NoError(t, err)
	cfg.Bus.LatencyTimer = time.Millisecond

	var out bytes.Buffer
	a := newApp(cfg, zap.NewNop(), &out)
	a.opener = func(string, int) (scs.Transport, error) {
		return &transports.MockTransport{Responder: sim.respond}, nil
	}
	return a, &out
}

func execApp(t *testing.T, a *app, args ...string) error {
	t.Helper()
	return a.exec(context.Background(), args[0], args[1:])
}

func TestRun_Config(t *testing.T) {
	t.Setenv("SCS_CONFIG", "")
	t.Setenv("SCS_LOGGING_LEVEL", "error")

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-port", "/dev/ttyUSB7", "config"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "port: /dev/ttyUSB7")
	assert.Contains(t, out.String(), "latencyTimer: 16ms")
}

func TestRun_Usage(t *testing.T) {
	t.Setenv("SCS_CONFIG", "")
	t.Setenv("SCS_LOGGING_LEVEL", "error")

	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &out, &errOut))
	assert.Contains(t, errOut.String(), "usage: scsctl")

	errOut.Reset()
	assert.Equal(t, 2, run(context.Background(), []string{"fly"}, &out, &errOut))
	assert.Contains(t, errOut.String(), `unknown command "fly"`)
}

func TestApp_OpenFailure(t *testing.T) {
	a, _ := newTestApp(t, newServoSim())
	a.opener = func(string, int) (scs.Transport, error) { return nil, errors.New("no such device") }

	err := execApp(t, a, "ping", "1")
	assert.ErrorContains(t, err, "cannot open /dev/ttyACM0")
}

func TestApp_PingAndScan(t *testing.T) {
	a, out := newTestApp(t, newServoSim(1, 3))

	require.NoError(t, execApp(t, a, "ping", "1"))
	assert.Equal(t, "servo 1: ok\n", out.String())

	err := execApp(t, a, "ping", "2")
	assert.True(t, scs.IsTimeout(err))

	out.Reset()
	require.NoError(t, execApp(t, a, "scan", "-first", "0", "-last", "4"))
	assert.Equal(t, "1\n3\n", out.String())
}

func TestApp_PosAndGoto(t *testing.T) {
	sim := newServoSim(1, 2)
	a, out := newTestApp(t, sim)

	require.NoError(t, execApp(t, a, "pos", "1", "2"))
	assert.Equal(t, "1 2048\n2 2048\n", out.String())

	require.NoError(t, execApp(t, a, "goto", "-speed", "300", "1", "1000"))
	assert.Equal(t, 1000, sim.word(1, scs.RegGoalPosition.Address))
	assert.Equal(t, 300, sim.word(1, scs.RegGoalSpeed.Address))

	require.NoError(t, execApp(t, a, "goto", "1", "100", "2", "200"))
	assert.Equal(t, 100, sim.word(1, scs.RegGoalPosition.Address))
	assert.Equal(t, 200, sim.word(2, scs.RegGoalPosition.Address))

	err := execApp(t, a, "goto", "1", "5000")
	assert.True(t, scs.IsOutOfRange(err))

	var ue *usageError
	assert.ErrorAs(t, execApp(t, a, "goto", "1"), &ue)
}

func TestApp_ModeTorqueSpeed(t *testing.T) {
	sim := newServoSim(1)
	a, out := newTestApp(t, sim)

	require.NoError(t, execApp(t, a, "mode", "1"))
	assert.Equal(t, "position\n", out.String())

	require.NoError(t, execApp(t, a, "mode", "1", "wheel"))
	out.Reset()
	require.NoError(t, execApp(t, a, "mode", "1"))
	assert.Equal(t, "wheel\n", out.String())
	assert.Equal(t, 1, sim.word(1, scs.RegLock.Address)&0xFF)

	require.NoError(t, execApp(t, a, "torque", "1", "on"))
	assert.Equal(t, 1, sim.word(1, scs.RegTorqueEnable.Address)&0xFF)

	require.NoError(t, execApp(t, a, "speed", "1", "-500"))
	assert.Equal(t, 0x8000|500, sim.word(1, scs.RegGoalSpeed.Address))

	var ue *usageError
	assert.ErrorAs(t, execApp(t, a, "torque", "1", "maybe"), &ue)
}

func TestApp_RegisterCommands(t *testing.T) {
	sim := newServoSim(1)
	a, out := newTestApp(t, sim)

	require.NoError(t, execApp(t, a, "baud", "1"))
	assert.Equal(t, "0 (1000000 baud)\n", out.String())

	out.Reset()
	require.NoError(t, execApp(t, a, "limits", "1"))
	assert.Equal(t, "0 4095\n", out.String())

	require.NoError(t, execApp(t, a, "limits", "1", "100", "3000"))
	out.Reset()
	require.NoError(t, execApp(t, a, "limits", "1"))
	assert.Equal(t, "100 3000\n", out.String())

	require.NoError(t, execApp(t, a, "correction", "1", "-100"))
	out.Reset()
	require.NoError(t, execApp(t, a, "correction", "1"))
	assert.Equal(t, "-100\n", out.String())
}

func TestApp_SetID(t *testing.T) {
	sim := newServoSim(1)
	a, out := newTestApp(t, sim)

	require.NoError(t, execApp(t, a, "set-id", "1", "5"))
	assert.Equal(t, "servo 1 is now 5\n", out.String())
	assert.True(t, sim.has(5))
	assert.False(t, sim.has(1))
}

func TestApp_Drive(t *testing.T) {
	sim := newServoSim(7, 8, 9)
	a, out := newTestApp(t, sim)

	require.NoError(t, execApp(t, a, "drive", "forward", "5ms"))
	assert.Equal(t, "7 1000\n8 0\n9 -1000\n", out.String())
	for _, id := range []byte{7, 8, 9} {
		assert.Equal(t, scs.ModeWheel, sim.word(id, scs.RegMode.Address)&0xFF, "servo %d", id)
		assert.Equal(t, 0, sim.word(id, scs.RegGoalSpeed.Address), "servo %d", id)
	}

	var ue *usageError
	assert.ErrorAs(t, execApp(t, a, "drive", "jump", "1s"), &ue)
}

func TestApp_Head(t *testing.T) {
	sim := newServoSim(7, 8)
	a, out := newTestApp(t, sim)

	require.NoError(t, execApp(t, a, "head", "0", "-180"))
	assert.Equal(t, "7 2048\n8 0\n", out.String())
	assert.Equal(t, 2048, sim.word(7, scs.RegGoalPosition.Address))
	assert.Equal(t, 1, sim.word(8, scs.RegTorqueEnable.Address)&0xFF)
}

func TestApp_Monitor(t *testing.T) {
	a, out := newTestApp(t, newServoSim(1))

	require.NoError(t, execApp(t, a, "monitor", "-count", "2", "-interval", "1ms", "1"))
	assert.Equal(t, "1 2048\n1 2048\n", out.String())
}
