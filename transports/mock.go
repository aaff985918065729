package transports

import (
	"sync"
	"time"
)

// Mock implements the session transport for testing. Each Write pops the
// next entry from Script and makes it readable, so multi-exchange flows
// (write-then-verify, connect probes, shutdown sequences) can be described
// as one response per outgoing frame. A nil script entry simulates a motor
// that never answers.
type Mock struct {
	mu      sync.Mutex
	pending []byte

	// Frames records every frame written, in order.
	Frames [][]byte

	// Script queues one response per write; nil = no response.
	Script [][]byte

	Closed      bool
	ReadTimeout time.Duration
	Flushes     int

	// ReadFunc allows custom read behavior for complex tests.
	ReadFunc func(p []byte) (int, error)
}

// Enqueue appends responses to the script.
func (m *Mock) Enqueue(responses ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Script = append(m.Script, responses...)
}

// Inject places bytes directly in the receive buffer, as if they arrived
// unsolicited (e.g. a late response to an abandoned exchange).
func (m *Mock) Inject(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, data...)
}

func (m *Mock) Read(p []byte) (int, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame := make([]byte, len(p))
	copy(frame, p)
	m.Frames = append(m.Frames, frame)

	if len(m.Script) > 0 {
		resp := m.Script[0]
		m.Script = m.Script[1:]
		if resp != nil {
			m.pending = append(m.pending, resp...)
		}
	}
	return len(p), nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *Mock) SetReadTimeout(timeout time.Duration) error {
	m.ReadTimeout = timeout
	return nil
}

// Flush discards buffered input, mirroring the serial transport's drain.
func (m *Mock) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	m.Flushes++
	return nil
}
