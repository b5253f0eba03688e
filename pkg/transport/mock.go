package transport

import "fmt"

// Mock is a scripted Transport for tests. Responses are consumed in
// FIFO order; every transmitted command is recorded for inspection.
type Mock struct {
	// Commands holds every command transmitted, in order.
	Commands [][]byte

	// Resets counts Reset calls.
	Resets int

	responses [][]byte
	errs      []error
	closed    bool
}

// NewMock creates an empty mock; queue replies with QueueResponse.
func NewMock() *Mock {
	return &Mock{}
}

// QueueResponse appends a raw reply to the script.
func (m *Mock) QueueResponse(resp []byte) *Mock {
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, nil)
	return m
}

// QueueError appends a failing exchange to the script.
func (m *Mock) QueueError(err error) *Mock {
	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

// TransmitRaw records the command and pops the next scripted reply.
func (m *Mock) TransmitRaw(cmd []byte) ([]byte, error) {
	if m.closed {
		return nil, ErrNotConnected
	}

	recorded := make([]byte, len(cmd))
	copy(recorded, cmd)
	m.Commands = append(m.Commands, recorded)

	if len(m.responses) == 0 {
		return nil, fmt.Errorf("transport: mock script exhausted after %d commands", len(m.Commands))
	}

	resp, err := m.responses[0], m.errs[0]
	m.responses = m.responses[1:]
	m.errs = m.errs[1:]
	return resp, err
}

// Reset records the call; the script is left untouched.
func (m *Mock) Reset() error {
	if m.closed {
		return ErrNotConnected
	}
	m.Resets++
	return nil
}

// IsConnected reports whether Close was called.
func (m *Mock) IsConnected() bool {
	return !m.closed
}

// Close marks the mock disconnected; further transmits fail.
func (m *Mock) Close() error {
	m.closed = true
	return nil
}

// Remaining returns the number of unconsumed scripted replies.
func (m *Mock) Remaining() int {
	return len(m.responses)
}
