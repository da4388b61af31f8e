package llm

import (
	"encoding/base64"
	"path/filepath"
	"strings"
)

// InlineData is a binary payload sent alongside the prompt.
type InlineData struct {
	MimeType string
	Data     []byte
}

// Request is a single logical "ask the model" operation.
// It is rebuilt into an identical envelope on every attempt.
type Request struct {
	// Prompt is the instruction text.
	Prompt string

	// Inline is an optional binary part (an image for classification).
	Inline *InlineData

	// Temperature controls randomness.
	Temperature float64

	// MaxOutputTokens caps the response length. 0 omits the cap.
	MaxOutputTokens int
}

// TextRequest builds a text-only request.
func TextRequest(prompt string, temperature float64, maxOutputTokens int) Request {
	return Request{
		Prompt:          prompt,
		Temperature:     temperature,
		MaxOutputTokens: maxOutputTokens,
	}
}

// ImageRequest builds a request carrying an inline image and an instruction.
func ImageRequest(prompt string, data []byte, mimeType string, temperature float64, maxOutputTokens int) Request {
	return Request{
		Prompt:          prompt,
		Inline:          &InlineData{MimeType: mimeType, Data: data},
		Temperature:     temperature,
		MaxOutputTokens: maxOutputTokens,
	}
}

// Envelope is the generateContent request body.
type Envelope struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// Content is one turn of the conversation.
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is either a text part or an inline data part.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlinePart `json:"inlineData,omitempty"`
}

// InlinePart is the wire form of InlineData.
type InlinePart struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// GenerationConfig holds sampling parameters.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// BuildEnvelope shapes req into the wire envelope.
// Image requests put the inline part first, followed by the instruction text.
func BuildEnvelope(req Request) Envelope {
	parts := make([]Part, 0, 2)
	if req.Inline != nil {
		parts = append(parts, Part{
			InlineData: &InlinePart{
				MimeType: req.Inline.MimeType,
				Data:     base64.StdEncoding.EncodeToString(req.Inline.Data),
			},
		})
	}
	parts = append(parts, Part{Text: req.Prompt})

	return Envelope{
		Contents: []Content{{Parts: parts}},
		GenerationConfig: GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
}

// MimeTypeForPath returns image/png for .png files and image/jpeg for everything else.
func MimeTypeForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}
