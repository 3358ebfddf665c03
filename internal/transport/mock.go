package transport

import (
	"context"
	"sync"
)

// Mock is a scripted Transport for tests and offline development. Each send
// pops the next scripted completion; text and error fields come from the
// script while metadata always round-trips from the request.
type Mock struct {
	mu       sync.Mutex
	script   []Completion
	Requests []Request

	// DropMetadata simulates a lossy streaming layer that loses the
	// out-of-band routing metadata.
	DropMetadata bool
}

// NewMock creates a mock transport with the given scripted completions.
func NewMock(script ...Completion) *Mock {
	return &Mock{script: script}
}

// Enqueue appends a scripted completion.
func (m *Mock) Enqueue(c Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, c)
}

// Send records the request and invokes onComplete synchronously with the
// next scripted completion, which keeps tests deterministic.
func (m *Mock) Send(_ context.Context, req Request, onComplete CompletionFunc) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	var next Completion
	if len(m.script) > 0 {
		next = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	if !m.DropMetadata {
		next.Metadata = req.Metadata
	}
	onComplete(next)
}
