package transports

import (
	"sync"
	"time"
)

// MockTransport implements the bus transport for testing. Each Write
// releases the next queued reply into the receive buffer, the way a servo
// answers only after it has been addressed.
type MockTransport struct {
	mu sync.Mutex

	// Replies are released one per Write. A nil entry means no answer.
	Replies [][]byte
	// Responder, when set, computes the reply to each written frame and
	// takes precedence over Replies.
	Responder func(frame []byte) []byte

	ReadData  []byte // bytes waiting to be read
	ReadErr   error
	ChunkSize int // max bytes returned per Read, 0 for no limit

	Writes     [][]byte // every written frame
	WriteData  []byte   // all written bytes
	WriteErr   error
	ShortWrite int // when > 0, Write reports this many bytes

	Closed      bool
	ReadTimeout time.Duration
	TimeoutErr  error // returned by SetReadTimeout
	Flushes     int

	// ReadFunc allows custom read behavior for complex tests
	ReadFunc func(p []byte) (int, error)
}

// Read returns buffered bytes. An empty buffer yields (0, nil), like a
// serial read that timed out.
func (m *MockTransport) Read(p []byte) (int, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	if m.ChunkSize > 0 && len(p) > m.ChunkSize {
		p = p[:m.ChunkSize]
	}
	n := copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return 0, m.WriteErr
	}

	frame := append([]byte(nil), p...)
	m.Writes = append(m.Writes, frame)
	m.WriteData = append(m.WriteData, p...)

	switch {
	case m.Responder != nil:
		m.ReadData = append(m.ReadData, m.Responder(frame)...)
	case len(m.Replies) > 0:
		m.ReadData = append(m.ReadData, m.Replies[0]...)
		m.Replies = m.Replies[1:]
	}

	if m.ShortWrite > 0 && m.ShortWrite < len(p) {
		return m.ShortWrite, nil
	}
	return len(p), nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TimeoutErr != nil {
		return m.TimeoutErr
	}
	m.ReadTimeout = timeout
	return nil
}

// Flush drops unread bytes. Queued replies are kept.
func (m *MockTransport) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Flushes++
	m.ReadData = nil
	return nil
}

// Queue appends replies to be released by later writes.
func (m *MockTransport) Queue(replies ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Replies = append(m.Replies, replies...)
}

// Written returns a copy of the frames written so far.
func (m *MockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.Writes))
	copy(out, m.Writes)
	return out
}
