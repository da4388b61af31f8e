// Package providers implements generative AI provider adapters.
package providers

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/civicreport/llm"
)

// GeminiProvider implements the Gemini generateContent API.
type GeminiProvider struct{}

// defaultGeminiURL is used when no base URL is configured.
const defaultGeminiURL = "https://generativelanguage.googleapis.com"

func init() {
	llm.RegisterProvider(&GeminiProvider{})
}

// Name returns the provider identifier.
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// BuildURL constructs the generateContent endpoint for model.
func (g *GeminiProvider) BuildURL(baseURL, model string) string {
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1beta") {
		baseURL += "/v1beta"
	}
	return baseURL + "/models/" + model + ":generateContent"
}

// SetHeaders adds the API key header. An empty apiKey falls back to GEMINI_API_KEY.
func (g *GeminiProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey != "" {
		req.Header.Set("x-goog-api-key", apiKey)
	}
}

// BuildRequestBody marshals the request envelope.
func (g *GeminiProvider) BuildRequestBody(req llm.Request) ([]byte, error) {
	return json.Marshal(llm.BuildEnvelope(req))
}

// ParseResponse interprets a generateContent response.
func (g *GeminiProvider) ParseResponse(statusCode int, body []byte) (string, error) {
	return llm.InterpretGenerateResponse(statusCode, body)
}
