package llm

import (
	"context"
	"sort"
	"time"
)

// CallRecord describes one invocation, covering every attempt it made.
type CallRecord struct {
	// RequestID uniquely identifies this invocation.
	RequestID string `json:"request_id"`

	// TraceID correlates the invocation with the request that caused it.
	TraceID string `json:"trace_id,omitempty"`

	// Policy is the retry policy name ("description", "classification").
	Policy string `json:"policy"`

	Provider string `json:"provider"`
	Model    string `json:"model"`

	// HasImage is set for image classification requests.
	HasImage bool `json:"has_image,omitempty"`

	// Attempts is the number of HTTP attempts made.
	Attempts int `json:"attempts"`

	// Waits are the back-off delays taken between attempts.
	Waits []time.Duration `json:"waits,omitempty"`

	// Outcome is "success" or the failure kind.
	Outcome string `json:"outcome"`

	// Error contains the error message if the invocation failed.
	Error string `json:"error,omitempty"`

	// ResponsePreview is the start of the generated text.
	ResponsePreview string `json:"response_preview,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// responsePreviewLen bounds ResponsePreview.
const responsePreviewLen = 200

// CallRecorder persists call records.
type CallRecorder interface {
	Record(ctx context.Context, record *CallRecord) error
}

// WithRecorder records every invocation with r. Recording failures are logged
// and never fail the invocation.
func WithRecorder(r CallRecorder) ClientOption {
	return func(client *Client) {
		client.recorder = r
	}
}

// SortByStartTime sorts records chronologically by StartedAt.
func SortByStartTime(records []*CallRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
}

// TraceContext holds trace information extracted from context.
type TraceContext struct {
	TraceID string
}

// traceContextKey is the context key for trace information.
type traceContextKey struct{}

// WithTraceContext adds trace information to a context.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTraceContext extracts trace information from a context.
func GetTraceContext(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(traceContextKey{}).(TraceContext); ok {
		return tc
	}
	return TraceContext{}
}
