package llm

import (
	"context"
	"time"
)

// RetryPolicy is the ordered list of back-off delays applied after rate-limited attempts.
// A policy with N delays allows N+1 attempts.
type RetryPolicy struct {
	// Name labels the policy in logs and metrics ("description", "classification").
	Name string

	// Delays are waited in order, one after each rate-limited attempt except the last.
	Delays []time.Duration

	// ExhaustedMessage is the error message returned when every attempt was rate limited.
	ExhaustedMessage string
}

// Attempts returns the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	return len(p.Delays) + 1
}

// DescriptionPolicy returns the retry policy for description generation.
func DescriptionPolicy() RetryPolicy {
	return RetryPolicy{
		Name:             "description",
		Delays:           []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
		ExhaustedMessage: "Rate limit exceeded. Please wait a minute and try again.",
	}
}

// ClassificationPolicy returns the retry policy for image classification.
func ClassificationPolicy() RetryPolicy {
	return RetryPolicy{
		Name:             "classification",
		Delays:           []time.Duration{5 * time.Second, 10 * time.Second},
		ExhaustedMessage: "Rate limit exceeded. Please select category manually.",
	}
}

// Sleeper waits between attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleepFunc adapts a function to the Sleeper interface.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleepFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// ContextSleeper waits for d or until ctx is done, whichever comes first.
var ContextSleeper Sleeper = SleepFunc(func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})
