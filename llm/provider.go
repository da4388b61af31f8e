package llm

import (
	"net/http"
	"sync"
)

// Provider defines the interface for generative AI provider implementations.
type Provider interface {
	// Name returns the provider identifier (e.g., "gemini").
	Name() string

	// BuildURL constructs the full API endpoint URL for a model.
	BuildURL(baseURL, model string) string

	// SetHeaders adds provider-specific authentication headers.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody creates the JSON request body.
	BuildRequestBody(req Request) ([]byte, error)

	// ParseResponse is the provider's default Interpreter.
	ParseResponse(statusCode int, body []byte) (string, error)
}

// providerRegistry holds registered providers.
var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	return names
}
