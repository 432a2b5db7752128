package llm

import (
	"context"
	"sync"
)

// MockClient answers "null" unless a canned response was queued. Used in
// tests and as the safe default provider.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// Queue appends canned responses returned in order; once drained the client
// goes back to answering "null".
func (m *MockClient) Queue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) Generate(ctx context.Context, system string, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.responses) == 0 {
		return "null", nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}
