package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrMockExhausted is returned by Mock when it runs out of scripted replies.
var ErrMockExhausted = errors.New("mock: no scripted reply left")

// Mock is a scripted Completer for tests. Errs is indexed by call number: a
// non-nil entry fails that call. Successful calls take Replies in order.
type Mock struct {
	mu       sync.Mutex
	Replies  []string
	Errs     []error
	Requests []Request // every request received, for inspection
	next     int
}

// NewMock creates a Mock that returns the given replies in order.
func NewMock(replies ...string) *Mock {
	return &Mock{Replies: replies}
}

func (m *Mock) Complete(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.Requests)
	m.Requests = append(m.Requests, req)
	if n < len(m.Errs) && m.Errs[n] != nil {
		return "", m.Errs[n]
	}
	if m.next >= len(m.Replies) {
		return "", ErrMockExhausted
	}
	reply := m.Replies[m.next]
	m.next++
	return reply, nil
}

// Last returns the most recent request.
func (m *Mock) Last() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return Request{}
	}
	return m.Requests[len(m.Requests)-1]
}
