// Package testutil provides test utilities for the llm package.
// It includes a mock generator and a recording sleeper so retry behavior can
// be verified without real waits.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/c360studio/civicreport/llm"
)

// MockGenerator is a thread-safe stand-in for *llm.Client.
// It captures every request and returns configured replies in sequence.
//
// Usage:
//
//	// Single reply
//	mock := &MockGenerator{Replies: []string{`{"category": "Pothole", "confidence": 0.9}`}}
//
//	// Error reply
//	mock := &MockGenerator{Err: llm.NewError(llm.KindUpstream, "HTTP 500")}
type MockGenerator struct {
	mu       sync.Mutex
	requests []llm.Request
	policies []llm.RetryPolicy
	index    int

	Replies []string // Replies to return in sequence
	Errs    []error  // Errors to return in sequence, matched by call index (nil entries fall through to Replies)
	Err     error    // Error to return on every call (takes precedence)
}

// Invoke records the call and returns the next configured reply.
func (m *MockGenerator) Invoke(_ context.Context, req llm.Request, policy llm.RetryPolicy) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.requests)
	m.requests = append(m.requests, req)
	m.policies = append(m.policies, policy)

	if m.Err != nil {
		return "", m.Err
	}
	if call < len(m.Errs) && m.Errs[call] != nil {
		return "", m.Errs[call]
	}
	if m.index < len(m.Replies) {
		reply := m.Replies[m.index]
		m.index++
		return reply, nil
	}
	return "", nil
}

// Requests returns a copy of the captured requests.
func (m *MockGenerator) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// Policies returns a copy of the captured retry policies.
func (m *MockGenerator) Policies() []llm.RetryPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.RetryPolicy(nil), m.policies...)
}

// CallCount returns the number of Invoke calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// RecordingSleeper records requested waits and returns immediately.
type RecordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

// Sleep records d. It still honours a cancelled context.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Waits returns the recorded waits in order.
func (s *RecordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// RecordingRecorder keeps call records in memory. Setting Err makes Record fail.
type RecordingRecorder struct {
	mu      sync.Mutex
	records []*llm.CallRecord

	Err error
}

// Record stores a copy of record.
func (r *RecordingRecorder) Record(_ context.Context, record *llm.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cp := *record
	r.records = append(r.records, &cp)
	return nil
}

// Records returns the stored records in order.
func (r *RecordingRecorder) Records() []*llm.CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*llm.CallRecord(nil), r.records...)
}
