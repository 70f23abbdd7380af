package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient implements Client for tests and offline runs. Responses are
// matched by substring rules against the user prompt, in registration order,
// with an optional scripted queue taking precedence. Calls are recorded for
// verification.
type MockClient struct {
	mu sync.Mutex

	rules     []mockRule
	scripted  []string
	err       error
	available bool

	// Calls records every request in order.
	Calls []Request
}

type mockRule struct {
	substring string
	response  string
}

// NewMockClient creates an available MockClient with no configured rules.
// Unmatched requests return "{}".
func NewMockClient() *MockClient {
	return &MockClient{available: true}
}

// WithResponse registers a response for any user prompt containing substring.
func (m *MockClient) WithResponse(substring, response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substring: substring, response: response})
	return m
}

// WithScript queues responses returned one by one before any rules apply.
func (m *MockClient) WithScript(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, responses...)
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithAvailable configures the Available result.
func (m *MockClient) WithAvailable(available bool) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
	return m
}

// Complete implements Client.Complete.
func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.err != nil {
		return "", m.err
	}

	if len(m.scripted) > 0 {
		resp := m.scripted[0]
		m.scripted = m.scripted[1:]
		return resp, nil
	}

	for _, rule := range m.rules {
		if strings.Contains(req.User, rule.substring) {
			return rule.response, nil
		}
	}

	return "{}", nil
}

// Available implements Client.Available.
func (m *MockClient) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// CallCount returns the number of completed calls.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears recorded calls, rules, scripts and errors.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = nil
	m.scripted = nil
	m.err = nil
	m.available = true
	m.Calls = nil
}
