// Package llm provides a resilient client for a generative AI endpoint.
// A call is retried only when upstream signals a rate limit, using the fixed
// delays of a RetryPolicy; every other failure surfaces immediately.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// networkErrorMessage is surfaced when the transport call fails.
const networkErrorMessage = "Network error - check your internet connection."

// Endpoint identifies the upstream model.
type Endpoint struct {
	// Provider is the registered provider name (e.g., "gemini").
	Provider string

	// URL is the API base URL. Empty uses the provider default.
	URL string

	// Model is the model name (e.g., "gemini-2.0-flash").
	Model string

	// APIKey authenticates the calls.
	APIKey string
}

// Client invokes the AI endpoint with rate-limit aware retries.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	endpoint   Endpoint
	httpClient *http.Client
	sleeper    Sleeper
	limiter    *rate.Limiter
	metrics    *Metrics
	recorder   CallRecorder
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithSleeper replaces the back-off wait primitive.
func WithSleeper(s Sleeper) ClientOption {
	return func(client *Client) {
		client.sleeper = s
	}
}

// WithLimiter makes every attempt wait on a limiter shared by all call sites
// using this client. Without it each call site spends its retry budget independently.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(client *Client) {
		client.limiter = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) ClientOption {
	return func(client *Client) {
		client.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client for the given endpoint.
func NewClient(endpoint Endpoint, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		sleeper: ContextSleeper,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Invoke runs req under policy, interpreting responses with the provider's parser.
func (c *Client) Invoke(ctx context.Context, req Request, policy RetryPolicy) (string, error) {
	return c.InvokeWith(ctx, req, policy, nil)
}

// InvokeWith runs req under policy using interpret to read each response.
// A nil interpret uses the provider's parser.
//
// Rate-limited attempts are followed by policy.Delays[attempt]; when the last
// allowed attempt is also rate limited the call fails with KindRetriesExhausted.
// Any other failure is returned as-is without further attempts.
func (c *Client) InvokeWith(ctx context.Context, req Request, policy RetryPolicy, interpret Interpreter) (string, error) {
	provider := GetProvider(c.endpoint.Provider)
	if provider == nil {
		return "", fmt.Errorf("unknown provider: %s", c.endpoint.Provider)
	}
	if interpret == nil {
		interpret = provider.ParseResponse
	}

	rec := &CallRecord{
		RequestID: uuid.New().String(),
		TraceID:   GetTraceContext(ctx).TraceID,
		Policy:    policy.Name,
		Provider:  c.endpoint.Provider,
		Model:     c.endpoint.Model,
		HasImage:  req.Inline != nil,
		StartedAt: time.Now(),
	}
	text, err := c.invoke(ctx, provider, req, policy, interpret, rec)
	c.finish(ctx, rec, text, err)
	return text, err
}

func (c *Client) invoke(ctx context.Context, provider Provider, req Request, policy RetryPolicy, interpret Interpreter, rec *CallRecord) (string, error) {
	attempts := policy.Attempts()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		text, err := c.doRequest(ctx, provider, req, interpret)
		rec.Attempts++
		c.metrics.observeAttempt(policy.Name, err)

		if err == nil {
			c.logger.Debug("AI request succeeded",
				"request_id", rec.RequestID,
				"policy", policy.Name,
				"attempt", attempt+1)
			return text, nil
		}

		if !IsTransient(err) {
			c.logger.Warn("AI request failed",
				"request_id", rec.RequestID,
				"policy", policy.Name,
				"attempt", attempt+1,
				"error", err)
			return "", err
		}

		lastErr = err
		if attempt == attempts-1 {
			break
		}

		wait := policy.Delays[attempt]
		c.logger.Warn("AI request rate limited, retrying",
			"request_id", rec.RequestID,
			"policy", policy.Name,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"wait", wait)
		c.metrics.observeWait(policy.Name)
		rec.Waits = append(rec.Waits, wait)

		if err := c.sleeper.Sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	message := policy.ExhaustedMessage
	if message == "" {
		message = fmt.Sprintf("rate limit exceeded after %d attempts", attempts)
	}
	c.logger.Warn("AI request retries exhausted",
		"request_id", rec.RequestID,
		"policy", policy.Name,
		"attempts", attempts)
	return "", &Error{
		Kind:       KindRetriesExhausted,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Err:        lastErr,
	}
}

// finish observes the invocation and hands its record to the recorder.
func (c *Client) finish(ctx context.Context, rec *CallRecord, text string, err error) {
	rec.CompletedAt = time.Now()
	elapsed := rec.CompletedAt.Sub(rec.StartedAt)
	rec.DurationMs = elapsed.Milliseconds()
	rec.Outcome = outcomeLabel(err)
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.ResponsePreview = truncate(text, responsePreviewLen)
	}

	c.metrics.observeInvocation(rec.Policy, err, elapsed)

	if c.recorder == nil {
		return
	}
	if recErr := c.recorder.Record(context.WithoutCancel(ctx), rec); recErr != nil {
		c.logger.Warn("Failed to record AI call",
			"request_id", rec.RequestID,
			"error", recErr)
	}
}

// doRequest executes a single attempt.
func (c *Client) doRequest(ctx context.Context, provider Provider, req Request, interpret Interpreter) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for shared rate limiter: %w", err)
		}
	}

	// Built fresh on every attempt; identical input yields identical bytes.
	body, err := provider.BuildRequestBody(req)
	if err != nil {
		return "", fmt.Errorf("build request body: %w", err)
	}

	url := provider.BuildURL(c.endpoint.URL, c.endpoint.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, c.endpoint.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &Error{
			Kind:    KindNetwork,
			Message: networkErrorMessage,
			Err:     fmt.Errorf("HTTP request failed: %w", err),
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &Error{
			Kind:       KindNetwork,
			Message:    networkErrorMessage,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("read response body: %w", err),
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		c.logger.Debug("AI service returned error status",
			"status", httpResp.StatusCode,
			"body", truncate(string(respBody), 200))
	}

	return interpret(httpResp.StatusCode, respBody)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
