package assist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c360studio/civicreport/category"
	"github.com/c360studio/civicreport/llm"
	"github.com/c360studio/civicreport/llm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriber_Generate(t *testing.T) {
	mock := &testutil.MockGenerator{Replies: []string{"The streetlight on Main Road has been non-functional for a week."}}
	d := NewDescriber(mock, DescriptionTask(), nil)

	got, err := d.Generate(context.Background(), "  streetlight broken  ")
	require.NoError(t, err)
	assert.Equal(t, "The streetlight on Main Road has been non-functional for a week.", got)

	require.Equal(t, 1, mock.CallCount())
	req := mock.Requests()[0]
	assert.Nil(t, req.Inline)
	assert.Contains(t, req.Prompt, `Citizen input: "streetlight broken"`)
	assert.Equal(t, 0.4, req.Temperature)
	assert.Equal(t, 256, req.MaxOutputTokens)
	assert.Equal(t, "description", mock.Policies()[0].Name)
}

func TestDescriber_EmptyInput(t *testing.T) {
	mock := &testutil.MockGenerator{}
	d := NewDescriber(mock, DescriptionTask(), nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := d.Generate(context.Background(), input)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Equal(t, 0, mock.CallCount())
}

func TestDescriber_PropagatesError(t *testing.T) {
	exhausted := llm.NewError(llm.KindRetriesExhausted, "Rate limit exceeded. Please wait a minute and try again.")
	mock := &testutil.MockGenerator{Err: exhausted}
	d := NewDescriber(mock, DescriptionTask(), nil)

	_, err := d.Generate(context.Background(), "garbage pile")
	require.Error(t, err)
	assert.True(t, llm.IsKind(err, llm.KindRetriesExhausted))
	assert.Equal(t, "Rate limit exceeded. Please wait a minute and try again.", err.Error())
}

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  category.Result
	}{
		{
			name:  "exact json",
			reply: `{"category": "Pothole", "confidence": 0.92}`,
			want:  category.Result{Category: category.Pothole, Confidence: 0.92},
		},
		{
			name:  "lower case label with surrounding text",
			reply: "Sure! Here is the answer:\n```json\n{\"category\": \"water leakage\", \"confidence\": 0.7}\n```",
			want:  category.Result{Category: category.WaterLeakage, Confidence: 0.7},
		},
		{
			name:  "unknown label",
			reply: `{"category": "Bridge Collapse", "confidence": 0.8}`,
			want:  category.Result{Category: category.Others, Confidence: 0.8},
		},
		{
			name:  "confidence above range",
			reply: `{"category": "Garbage", "confidence": 1.5}`,
			want:  category.Result{Category: category.Garbage, Confidence: 1.0},
		},
		{
			name:  "confidence below range",
			reply: `{"category": "Sewage", "confidence": -0.2}`,
			want:  category.Result{Category: category.Sewage, Confidence: 0.0},
		},
		{
			name:  "missing confidence",
			reply: `{"category": "Streetlight"}`,
			want:  category.Result{Category: category.Streetlight, Confidence: 0.0},
		},
		{
			name:  "non-numeric confidence",
			reply: `{"category": "Road Damage", "confidence": "high"}`,
			want:  category.Result{Category: category.RoadDamage, Confidence: 0.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &testutil.MockGenerator{Replies: []string{tt.reply}}
			c := NewClassifier(mock, ClassificationTask(), nil)

			got, err := c.Classify(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifier_InvalidShape(t *testing.T) {
	for _, reply := range []string{"I think this is a pothole.", "{not json}", `{"category": "Pothole"`} {
		t.Run(reply, func(t *testing.T) {
			mock := &testutil.MockGenerator{Replies: []string{reply}}
			c := NewClassifier(mock, ClassificationTask(), nil)

			_, err := c.Classify(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
			require.Error(t, err)
			assert.True(t, llm.IsKind(err, llm.KindInvalidResponseShape))
		})
	}
}

func TestClassifier_EmptyImage(t *testing.T) {
	mock := &testutil.MockGenerator{}
	c := NewClassifier(mock, ClassificationTask(), nil)

	_, err := c.Classify(context.Background(), nil, "image/jpeg")
	assert.ErrorIs(t, err, ErrEmptyImage)
	assert.Equal(t, 0, mock.CallCount())
}

func TestClassifier_ClassifyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issue.PNG")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0644))

	mock := &testutil.MockGenerator{Replies: []string{`{"category": "Garbage", "confidence": 0.6}`}}
	c := NewClassifier(mock, ClassificationTask(), nil)

	got, err := c.ClassifyFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, category.Garbage, got.Category)

	req := mock.Requests()[0]
	require.NotNil(t, req.Inline)
	assert.Equal(t, "image/png", req.Inline.MimeType)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, req.Inline.Data)
	assert.Equal(t, 0.1, req.Temperature)
	assert.Equal(t, 100, req.MaxOutputTokens)
	assert.Equal(t, "classification", mock.Policies()[0].Name)
}

func TestClassifier_ClassifyFileMissing(t *testing.T) {
	mock := &testutil.MockGenerator{}
	c := NewClassifier(mock, ClassificationTask(), nil)

	_, err := c.ClassifyFile(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, mock.CallCount())
}

func TestClassificationPrompt_ListsEveryCategory(t *testing.T) {
	prompt := classificationPrompt()
	for _, c := range category.All() {
		assert.True(t, strings.Contains(prompt, "- "+string(c)+" ("), c)
	}
	assert.Contains(t, prompt, `{"category": "CategoryName", "confidence": 0.XX}`)
}
