package scs

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Port owns one serial line. It knows nothing about frames: it writes bytes,
// reads bytes against a deadline and sizes response timeouts from the baud
// rate. Only one exchange may hold the port at a time.
type Port struct {
	opener       Opener
	latency      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger

	mu        sync.Mutex // guards transport, name, baudRate
	transport Transport
	name      string
	baudRate  int
	msPerByte float64

	busy sync.Mutex
}

// PortConfig holds configuration for a Port.
type PortConfig struct {
	// Opener creates the transport in Open. Default is SerialOpener.
	Opener Opener

	// LatencyTimer is the fixed device turnaround added twice to every
	// response timeout. Default is 16ms.
	LatencyTimer time.Duration

	// PollInterval is the pause between empty reads. Default is 1ms.
	PollInterval time.Duration

	Logger *zap.Logger
}

// Default port settings.
const (
	DefaultLatencyTimer = 16 * time.Millisecond
	DefaultPollInterval = time.Millisecond
	DefaultBaudRate     = 1000000
)

// NewPort creates a closed port.
func NewPort(cfg PortConfig) *Port {
	if cfg.Opener == nil {
		cfg.Opener = SerialOpener
	}
	if cfg.LatencyTimer == 0 {
		cfg.LatencyTimer = DefaultLatencyTimer
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Port{
		opener:       cfg.Opener,
		latency:      cfg.LatencyTimer,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}
}

// Open opens the named device. It reports failure with false and never
// panics, so callers can retry or enumerate other ports.
func (p *Port) Open(name string, baudRate int) bool {
	if baudRate <= 0 {
		p.logger.Warn("invalid baud rate", zap.String("port", name), zap.Int("baud", baudRate))
		return false
	}

	t, err := p.opener(name, baudRate)
	if err != nil {
		p.logger.Warn("open port failed", zap.String("port", name), zap.Error(err))
		return false
	}

	p.Attach(t, name, baudRate)
	return true
}

// Attach adopts an already open transport, closing any previous one.
func (p *Port) Attach(t Transport, name string, baudRate int) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transport != nil {
		_ = p.transport.Close()
	}
	p.transport = t
	p.name = name
	p.baudRate = baudRate
	p.msPerByte = (1000.0 / float64(baudRate)) * 10.0
}

// Close releases the handle. Closing a closed port is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transport == nil {
		return nil
	}
	err := p.transport.Close()
	p.transport = nil
	return err
}

// IsOpen reports whether a transport is attached.
func (p *Port) IsOpen() bool {
	return p.current() != nil
}

// Name returns the device path passed to Open.
func (p *Port) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// BaudRate returns the line speed of the open port.
func (p *Port) BaudRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baudRate
}

// Write sends data and returns the number of bytes written, 0 on any failure.
func (p *Port) Write(data []byte) int {
	t := p.current()
	if t == nil {
		return 0
	}

	n, err := t.Write(data)
	if err != nil {
		p.logger.Debug("write failed", zap.Error(err))
		return 0
	}
	return n
}

// Read collects up to maxLen bytes, polling until they have all arrived or
// the deadline passes. It may return fewer bytes than requested.
func (p *Port) Read(maxLen int, deadline time.Time) []byte {
	t := p.current()
	if t == nil || maxLen <= 0 {
		return nil
	}

	buf := make([]byte, maxLen)
	n := 0
	for n < maxLen {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		if err := t.SetReadTimeout(remaining); err != nil {
			p.logger.Debug("set read timeout failed", zap.Error(err))
		}
		k, err := t.Read(buf[n:])
		n += k
		if err != nil {
			p.logger.Debug("read failed", zap.Error(err))
		}
		if k == 0 {
			time.Sleep(min(p.pollInterval, remaining))
		}
	}

	return buf[:n]
}

// ClearInput discards stale bytes waiting in the receive buffer.
func (p *Port) ClearInput() {
	if t := p.current(); t != nil {
		if err := t.Flush(); err != nil {
			p.logger.Debug("flush failed", zap.Error(err))
		}
	}
}

// ComputeTimeout sizes the wait for a response of frameLen bytes:
// transmission time plus twice the device latency plus 2ms.
func (p *Port) ComputeTimeout(frameLen int) time.Duration {
	p.mu.Lock()
	msPerByte := p.msPerByte
	p.mu.Unlock()

	ms := msPerByte*float64(frameLen) + 2*float64(p.latency)/float64(time.Millisecond) + 2.0
	return time.Duration(ms * float64(time.Millisecond))
}

// TryAcquire marks the port busy. It returns false without waiting if
// another exchange holds it.
func (p *Port) TryAcquire() bool {
	return p.busy.TryLock()
}

// Release clears the busy mark set by a successful TryAcquire.
func (p *Port) Release() {
	p.busy.Unlock()
}

func (p *Port) current() Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport
}
