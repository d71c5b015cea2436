package scs

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Bus sequences instructions on one port: unicast instructions wait for a
// matching response, broadcast instructions never do. There are no retries;
// every exchange ends with exactly one CommResult.
type Bus struct {
	port           *Port
	codec          *Codec
	responseMargin int
	limiter        *rate.Limiter
	logger         *zap.Logger
	metrics        *Metrics
}

// BusConfig holds configuration for creating a new Bus.
type BusConfig struct {
	// Transport is an already open transport. When set the bus starts
	// connected; otherwise call Open with a port name.
	Transport Transport

	// BaudRate of Transport, used to size response timeouts. Default is 1000000.
	BaudRate int

	// Protocol version: ProtocolSTS (default) or ProtocolSCS.
	Protocol Protocol

	// LatencyTimer is the fixed device turnaround. Default is 16ms.
	LatencyTimer time.Duration

	// ResponseMargin is added to the expected response size in bytes when
	// sizing the response timeout. Default is 10.
	ResponseMargin int

	// MinCommandGap is the minimum time between frames. Zero disables pacing.
	MinCommandGap time.Duration

	// PollInterval is the pause between empty reads. Default is 1ms.
	PollInterval time.Duration

	// Opener creates the transport in Open. Default is SerialOpener.
	Opener Opener

	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultResponseMargin is the byte margin added to response timeouts.
const DefaultResponseMargin = 10

// NewBus creates a bus with the given configuration.
func NewBus(cfg BusConfig) *Bus {
	if cfg.ResponseMargin == 0 {
		cfg.ResponseMargin = DefaultResponseMargin
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	port := NewPort(PortConfig{
		Opener:       cfg.Opener,
		LatencyTimer: cfg.LatencyTimer,
		PollInterval: cfg.PollInterval,
		Logger:       cfg.Logger,
	})
	if cfg.Transport != nil {
		port.Attach(cfg.Transport, "", cfg.BaudRate)
	}

	b := &Bus{
		port:           port,
		codec:          NewCodec(cfg.Protocol),
		responseMargin: cfg.ResponseMargin,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
	if cfg.MinCommandGap > 0 {
		b.limiter = rate.NewLimiter(rate.Every(cfg.MinCommandGap), 1)
	}
	return b
}

// Open opens the named serial device.
func (b *Bus) Open(name string, baudRate int) bool {
	return b.port.Open(name, baudRate)
}

// Close closes the port. It is safe to call more than once.
func (b *Bus) Close() error {
	return b.port.Close()
}

// Port returns the underlying port.
func (b *Bus) Port() *Port {
	return b.port
}

// Codec returns the frame codec for this bus.
func (b *Bus) Codec() *Codec {
	return b.codec
}

// SendUnicast sends one instruction to id and waits for its response.
// On Success the parsed response frame and its error byte are returned.
func (b *Bus) SendUnicast(id, instruction byte, params []byte) (Frame, StatusError, CommResult) {
	if id == BroadcastID {
		return nil, 0, NotAvailable
	}

	start := time.Now()
	frame, status, result := b.exchange(id, instruction, params)
	b.metrics.observe(instruction, result, time.Since(start))
	if result != Success {
		b.logger.Debug("exchange failed",
			zap.Uint8("id", id),
			zap.String("instruction", instructionName(instruction)),
			zap.Stringer("result", result))
	}
	return frame, status, result
}

func (b *Bus) exchange(id, instruction byte, params []byte) (Frame, StatusError, CommResult) {
	if !b.port.TryAcquire() {
		return nil, 0, PortBusy
	}
	defer b.port.Release()

	if result := b.transmit(id, instruction, params); result != Success {
		return nil, 0, result
	}

	expected := b.responseMargin
	if instruction == InstRead && len(params) >= 2 {
		expected += int(params[1])
	}
	deadline := time.Now().Add(b.port.ComputeTimeout(expected))

	frame, result := b.codec.ReceiveFrame(b.port, deadline)
	if result != Success {
		return nil, 0, result
	}
	if frame.ID() != id || len(frame) < MinFrameLength {
		return nil, 0, RxCorrupt
	}

	return frame, frame.Status(), Success
}

// SendBroadcast writes one instruction to the broadcast address and returns
// as soon as it is written. No device answers a broadcast.
func (b *Bus) SendBroadcast(instruction byte, params []byte) CommResult {
	if !b.port.TryAcquire() {
		return PortBusy
	}
	defer b.port.Release()

	result := b.transmit(BroadcastID, instruction, params)
	b.metrics.observe(instruction, result, 0)
	if result != Success {
		b.logger.Debug("broadcast failed",
			zap.String("instruction", instructionName(instruction)),
			zap.Stringer("result", result))
	}
	return result
}

// transmit builds and writes a frame. The caller holds the port.
func (b *Bus) transmit(id, instruction byte, params []byte) CommResult {
	frame, err := b.codec.BuildFrame(id, instruction, params)
	if err != nil {
		return TxError
	}

	if b.limiter != nil {
		time.Sleep(b.limiter.Reserve().Delay())
	}

	b.port.ClearInput()
	n := b.port.Write(frame)
	b.metrics.wrote(n)
	if n != len(frame) {
		return TxFail
	}
	return Success
}

// Ping checks that a device answers at id.
func (b *Bus) Ping(id byte) (StatusError, CommResult) {
	_, status, result := b.SendUnicast(id, InstPing, nil)
	return status, result
}

// Read reads length bytes starting at address.
func (b *Bus) Read(id, address byte, length int) ([]byte, StatusError, CommResult) {
	frame, status, result := b.SendUnicast(id, InstRead, []byte{address, byte(length)})
	if result != Success {
		return nil, status, result
	}

	data := frame.Params()
	if len(data) != length {
		return nil, status, RxCorrupt
	}
	out := make([]byte, length)
	copy(out, data)
	return out, status, Success
}

// Write writes data starting at address and waits for the acknowledgement.
func (b *Bus) Write(id, address byte, data []byte) (StatusError, CommResult) {
	_, status, result := b.SendUnicast(id, InstWrite, writeParams(address, data))
	return status, result
}

// SyncWrite broadcasts one frame carrying width bytes for every device in payload.
func (b *Bus) SyncWrite(address byte, width int, payload []byte) CommResult {
	params := make([]byte, 0, 2+len(payload))
	params = append(params, address, byte(width))
	params = append(params, payload...)
	return b.SendBroadcast(InstSyncWrite, params)
}
