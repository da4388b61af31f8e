// Package assist implements the two AI helpers used while reporting an issue:
// turning a short note into a formal complaint description and suggesting a
// category from a photo.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/c360studio/civicreport/category"
	"github.com/c360studio/civicreport/llm"
)

// ErrEmptyInput is returned when there is nothing to describe.
var ErrEmptyInput = errors.New("please enter some text first")

// ErrEmptyImage is returned when a classification request carries no image bytes.
var ErrEmptyImage = errors.New("image is empty")

// Generator runs a request under a retry policy. *llm.Client implements it.
type Generator interface {
	Invoke(ctx context.Context, req llm.Request, policy llm.RetryPolicy) (string, error)
}

// Task holds the generation settings of one AI task.
type Task struct {
	Temperature     float64
	MaxOutputTokens int
	Policy          llm.RetryPolicy
}

// DescriptionTask returns the default settings for description generation.
func DescriptionTask() Task {
	return Task{
		Temperature:     0.4,
		MaxOutputTokens: 256,
		Policy:          llm.DescriptionPolicy(),
	}
}

// ClassificationTask returns the default settings for image classification.
func ClassificationTask() Task {
	return Task{
		Temperature:     0.1,
		MaxOutputTokens: 100,
		Policy:          llm.ClassificationPolicy(),
	}
}

// Describer generates formal complaint descriptions.
type Describer struct {
	gen    Generator
	task   Task
	logger *slog.Logger
}

// NewDescriber creates a Describer. A nil logger uses slog.Default().
func NewDescriber(gen Generator, task Task, logger *slog.Logger) *Describer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Describer{gen: gen, task: task, logger: logger}
}

// Generate converts userText into a professional municipal complaint description.
func (d *Describer) Generate(ctx context.Context, userText string) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", ErrEmptyInput
	}

	req := llm.TextRequest(descriptionPrompt(userText), d.task.Temperature, d.task.MaxOutputTokens)
	text, err := d.gen.Invoke(ctx, req, d.task.Policy)
	if err != nil {
		return "", err
	}

	d.logger.Debug("Generated description", "input_len", len(userText), "output_len", len(text))
	return text, nil
}

// Classifier suggests a category for a photo of the issue.
type Classifier struct {
	gen    Generator
	task   Task
	logger *slog.Logger
}

// NewClassifier creates a Classifier. A nil logger uses slog.Default().
func NewClassifier(gen Generator, task Task, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{gen: gen, task: task, logger: logger}
}

// ClassifyFile reads the photo at path and classifies it.
// The MIME type follows the file extension.
func (c *Classifier) ClassifyFile(ctx context.Context, path string) (category.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return category.Result{}, fmt.Errorf("read photo: %w", err)
	}
	return c.Classify(ctx, data, llm.MimeTypeForPath(path))
}

// Classify sends the image to the model and normalizes its answer.
func (c *Classifier) Classify(ctx context.Context, data []byte, mimeType string) (category.Result, error) {
	if len(data) == 0 {
		return category.Result{}, ErrEmptyImage
	}

	req := llm.ImageRequest(classificationPrompt(), data, mimeType, c.task.Temperature, c.task.MaxOutputTokens)
	text, err := c.gen.Invoke(ctx, req, c.task.Policy)
	if err != nil {
		return category.Result{}, err
	}

	result, err := ParseClassification(text)
	if err != nil {
		c.logger.Warn("Unusable classification response", "response", text, "error", err)
		return category.Result{}, err
	}

	c.logger.Debug("Classified photo",
		"category", result.Category,
		"confidence", result.Confidence)
	return result, nil
}

// ParseClassification extracts the first JSON object from text and normalizes it.
func ParseClassification(text string) (category.Result, error) {
	obj := llm.ExtractObject(text)
	if obj == "" {
		return category.Result{}, llm.NewError(llm.KindInvalidResponseShape, "Invalid response format.")
	}

	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return category.Result{}, &llm.Error{
			Kind:    llm.KindInvalidResponseShape,
			Message: "Invalid response format.",
			Err:     err,
		}
	}

	return category.FromFields(fields), nil
}
