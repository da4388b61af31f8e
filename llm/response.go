package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Interpreter turns a raw HTTP response into extracted text or a classified *Error.
type Interpreter func(statusCode int, body []byte) (string, error)

// generateResponse is the generateContent success shape.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

// errorResponse is the structured error body returned by the API.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// InterpretGenerateResponse classifies a generateContent response.
//
//	429            -> KindRateLimited
//	other non-2xx  -> KindUpstream, message from error.message or "HTTP <status>"
//	unparsable 2xx -> KindUpstream
//	no text        -> KindEmptyResult
func InterpretGenerateResponse(statusCode int, body []byte) (string, error) {
	if statusCode == http.StatusTooManyRequests {
		return "", &Error{
			Kind:       KindRateLimited,
			Message:    "rate limit",
			StatusCode: statusCode,
		}
	}

	if statusCode < 200 || statusCode > 299 {
		return "", &Error{
			Kind:       KindUpstream,
			Message:    upstreamMessage(statusCode, body),
			StatusCode: statusCode,
		}
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{
			Kind:       KindUpstream,
			Message:    "could not parse response from AI service",
			StatusCode: statusCode,
			Err:        fmt.Errorf("parse generate response: %w", err),
		}
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &Error{Kind: KindEmptyResult, Message: "no result was generated", StatusCode: statusCode}
	}

	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", &Error{Kind: KindEmptyResult, Message: "no result was generated", StatusCode: statusCode}
	}
	return text, nil
}

// upstreamMessage prefers the structured error message and falls back to the status.
func upstreamMessage(statusCode int, body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if msg := strings.TrimSpace(errResp.Error.Message); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("HTTP %d", statusCode)
}
