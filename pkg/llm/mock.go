package llm

import (
	"context"
	"sync"
)

// defaultMockOutput is a well-formed response so the pipeline is exercisable
// end to end with no provider configured.
const defaultMockOutput = `FILE: components/Navbar.tsx
export default function Navbar() {
  return (
    <nav className="flex items-center justify-between px-6 py-4 bg-white shadow">
      <span className="text-xl font-bold">My Site</span>
      <div className="flex gap-6">
        <a href="#home" className="hover:text-blue-600">Home</a>
        <a href="#about" className="hover:text-blue-600">About</a>
        <a href="#contact" className="hover:text-blue-600">Contact</a>
      </div>
    </nav>
  );
}
`

// MockClient is the offline Client used by default and in tests. Responses
// are served from a FIFO script when one is set; otherwise every call gets
// the canned navbar output.
type MockClient struct {
	mu       sync.Mutex
	script   []Response
	err      error
	requests []Request
}

// NewMockClient creates a mock client with the canned default output.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Enqueue appends a scripted response returned by a future Complete call.
func (m *MockClient) Enqueue(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, Response{Content: content, Model: m.ModelName()})
}

// FailWith makes every subsequent Complete call return err.
func (m *MockClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns a copy of every request seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, classify("mock", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.err != nil {
		return Response{}, newTransportError("mock", KindTransient, "scripted failure", m.err)
	}
	if len(m.script) > 0 {
		resp := m.script[0]
		m.script = m.script[1:]
		return resp, nil
	}
	return Response{Content: defaultMockOutput, Model: m.ModelName()}, nil
}

// ModelName implements Client.
func (m *MockClient) ModelName() string {
	return "mock"
}
