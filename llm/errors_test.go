package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	rateLimited := NewError(KindRateLimited, "rate limit")
	wrapped := fmt.Errorf("describe: %w", NewError(KindUpstream, "HTTP 500"))

	assert.Equal(t, KindRateLimited, KindOf(rateLimited))
	assert.Equal(t, KindUpstream, KindOf(wrapped))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(0), KindOf(nil))

	assert.True(t, IsTransient(rateLimited))
	assert.False(t, IsFatal(rateLimited))
	assert.True(t, IsFatal(wrapped))
	assert.False(t, IsTransient(wrapped))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: KindNetwork, Message: "Network error", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Network error", err.Error())
}

func TestKind_String(t *testing.T) {
	kinds := map[Kind]string{
		KindNetwork:              "network",
		KindRateLimited:          "rate_limited",
		KindRetriesExhausted:     "retries_exhausted",
		KindUpstream:             "upstream",
		KindEmptyResult:          "empty_result",
		KindInvalidResponseShape: "invalid_response_shape",
		Kind(99):                 "unknown",
	}
	for k, want := range kinds {
		assert.Equal(t, want, k.String())
	}
}

func TestRetryPolicy_Attempts(t *testing.T) {
	assert.Equal(t, 4, DescriptionPolicy().Attempts())
	assert.Equal(t, 3, ClassificationPolicy().Attempts())
	assert.Equal(t, 1, RetryPolicy{}.Attempts())
}
