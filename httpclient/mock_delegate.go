package httpclient

import (
	"context"
	"net/http"
	"sync"
)

// MockCall records one dispatch a MockDelegate received.
type MockCall struct {
	Method Method
	URL    string
	Config *Config
	Body   any
}

// MockDelegate is a configurable Delegate for tests. Responses are served
// from a FIFO script; when the script runs dry the default response (or
// the handler, when set) answers.
type MockDelegate struct {
	mu       sync.Mutex
	script   []*Envelope
	fallback *Envelope
	err      error
	handler  func(ctx context.Context, method Method, url string, cfg *Config, body any) (*Envelope, error)
	calls    []MockCall
}

var _ Delegate = (*MockDelegate)(nil)

// NewMockDelegate creates a mock answering 200 OK with an empty body
// until scripted otherwise.
func NewMockDelegate() *MockDelegate {
	return &MockDelegate{
		fallback: EnvelopeFromBytes(http.StatusOK, nil, nil, nil),
	}
}

// Respond sets the default response.
func (m *MockDelegate) Respond(env *Envelope) *MockDelegate {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = env
	return m
}

// RespondError makes every unscripted call fail with err.
func (m *MockDelegate) RespondError(err error) *MockDelegate {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Script appends envelopes served in order before the default response.
func (m *MockDelegate) Script(envs ...*Envelope) *MockDelegate {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, envs...)
	return m
}

// Handle installs a dynamic handler consulted when the script is empty.
func (m *MockDelegate) Handle(h func(ctx context.Context, method Method, url string, cfg *Config, body any) (*Envelope, error)) *MockDelegate {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
	return m
}

// Send implements Delegate.
func (m *MockDelegate) Send(ctx context.Context, method Method, url string, cfg *Config, body any) (*Envelope, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, URL: url, Config: cfg, Body: body})

	if len(m.script) > 0 {
		env := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		return env, nil
	}

	handler := m.handler
	fallback := m.fallback
	err := m.err
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, method, url, cfg, body)
	}
	if err != nil {
		return nil, err
	}
	return fallback, nil
}

// Calls returns a snapshot of every recorded dispatch.
func (m *MockDelegate) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many dispatches the mock served.
func (m *MockDelegate) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
