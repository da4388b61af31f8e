package report

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/civicreport/category"
	"github.com/c360studio/civicreport/llm"
	"github.com/c360studio/civicreport/storage"
)

type fakeDescriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeDescriber) Generate(_ context.Context, userText string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeClassifier struct {
	result category.Result
	err    error
	paths  []string
}

func (f *fakeClassifier) ClassifyFile(_ context.Context, path string) (category.Result, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return category.Result{}, f.err
	}
	return f.result, nil
}

func ptr(f float64) *float64 { return &f }

func validSubmission() Submission {
	return Submission{
		UserID:      "user-1",
		PhotoPath:   "/photos/issue.jpg",
		Latitude:    ptr(19.076),
		Longitude:   ptr(72.8777),
		Description: "  pothole near school  ",
	}
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Submission)
		wantErr error
	}{
		{"missing photo", func(s *Submission) { s.PhotoPath = " " }, ErrMissingPhoto},
		{"missing latitude", func(s *Submission) { s.Latitude = nil }, ErrMissingLocation},
		{"missing longitude", func(s *Submission) { s.Longitude = nil }, ErrMissingLocation},
		{"latitude out of range", func(s *Submission) { s.Latitude = ptr(91) }, ErrInvalidLocation},
		{"longitude out of range", func(s *Submission) { s.Longitude = ptr(-181) }, ErrInvalidLocation},
		{"latitude NaN", func(s *Submission) { s.Latitude = ptr(math.NaN()) }, ErrInvalidLocation},
		{"longitude infinite", func(s *Submission) { s.Longitude = ptr(math.Inf(1)) }, ErrInvalidLocation},
		{"blank description", func(s *Submission) { s.Description = "\n" }, ErrMissingDescription},
		{"not logged in", func(s *Submission) { s.UserID = "" }, ErrNotAuthenticated},
		{"unknown manual category", func(s *Submission) { s.Category = "Bridge Collapse" }, ErrUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			flow := NewFlow(store, nil, nil, Options{})

			sub := validSubmission()
			tt.mutate(&sub)

			_, err := flow.Submit(context.Background(), sub)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidation(err))

			reports, err := store.ListReportsByUser(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Empty(t, reports)
		})
	}
}

func TestSubmit_ManualCategory(t *testing.T) {
	store := storage.NewMemoryStore()
	classifier := &fakeClassifier{result: category.Result{Category: category.Garbage, Confidence: 0.9}}
	flow := NewFlow(store, nil, classifier, Options{Recipient: "ward@example.gov"})

	sub := validSubmission()
	sub.Category = "road damage"
	sub.AutoClassify = true

	receipt, err := flow.Submit(context.Background(), sub)
	require.NoError(t, err)

	// A manual choice wins over auto-classification.
	assert.Empty(t, classifier.paths)
	assert.Equal(t, "Road Damage", receipt.Report.Category)
	assert.Equal(t, "pothole near school", receipt.Report.Description)
	assert.Equal(t, storage.StatusPending, receipt.Report.Status)
	assert.Empty(t, receipt.Notices)

	assert.Equal(t, "ward@example.gov", receipt.Email.To)
	assert.Equal(t, "Civic Issue Report - Road Damage", receipt.Email.Subject)
	assert.True(t, strings.HasPrefix(receipt.MailtoURL, "mailto:ward@example.gov?"))

	stored, err := store.GetReport(context.Background(), receipt.Report.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Latitude)
	assert.InDelta(t, 19.076, *stored.Latitude, 1e-9)
	assert.Equal(t, "/photos/issue.jpg", stored.LocalImageURI)
}

func TestSubmit_NoCategoryFallsBackToOthers(t *testing.T) {
	flow := NewFlow(storage.NewMemoryStore(), nil, nil, Options{})

	receipt, err := flow.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, "Others", receipt.Report.Category)
	assert.Empty(t, receipt.Notices)
}

func TestSubmit_AutoClassify(t *testing.T) {
	classifier := &fakeClassifier{result: category.Result{Category: category.Pothole, Confidence: 0.92}}
	flow := NewFlow(storage.NewMemoryStore(), nil, classifier, Options{MinConfidence: 0.5})

	sub := validSubmission()
	sub.AutoClassify = true

	receipt, err := flow.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"/photos/issue.jpg"}, classifier.paths)
	assert.Equal(t, "Pothole", receipt.Report.Category)
	require.NotNil(t, receipt.Classification)
	assert.Equal(t, 0.92, receipt.Classification.Confidence)
	assert.Empty(t, receipt.Notices)
}

func TestSubmit_LowConfidenceKeptWithNotice(t *testing.T) {
	classifier := &fakeClassifier{result: category.Result{Category: category.Sewage, Confidence: 0.3}}
	flow := NewFlow(storage.NewMemoryStore(), nil, classifier, Options{MinConfidence: 0.5})

	sub := validSubmission()
	sub.AutoClassify = true

	receipt, err := flow.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "Sewage", receipt.Report.Category)
	require.Len(t, receipt.Notices, 1)
	assert.Equal(t, NoticeLowConfidence, receipt.Notices[0].Kind)
	assert.Contains(t, receipt.Notices[0].Message, "30%")
}

func TestSubmit_ClassificationFailureDoesNotBlock(t *testing.T) {
	exhausted := llm.NewError(llm.KindRetriesExhausted, "Rate limit exceeded. Please select category manually.")
	classifier := &fakeClassifier{err: exhausted}
	flow := NewFlow(storage.NewMemoryStore(), nil, classifier, Options{})

	sub := validSubmission()
	sub.AutoClassify = true

	receipt, err := flow.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "Others", receipt.Report.Category)
	assert.Nil(t, receipt.Classification)
	require.Len(t, receipt.Notices, 1)
	assert.Equal(t, Notice{Kind: NoticeClassification, Message: "Rate limit exceeded. Please select category manually."}, receipt.Notices[0])
}

func TestSubmit_EnhanceDescription(t *testing.T) {
	describer := &fakeDescriber{text: " The road outside the school has a deep pothole. Kindly repair it. "}
	flow := NewFlow(storage.NewMemoryStore(), describer, nil, Options{})

	sub := validSubmission()
	sub.EnhanceDescription = true

	receipt, err := flow.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 1, describer.calls)
	assert.Equal(t, "The road outside the school has a deep pothole. Kindly repair it.", receipt.Report.Description)
	assert.Contains(t, receipt.Email.Body, "The road outside the school has a deep pothole.")
}

func TestSubmit_DescriptionFailureKeepsText(t *testing.T) {
	describer := &fakeDescriber{err: llm.NewError(llm.KindNetwork, "Network error - check your internet connection.")}
	flow := NewFlow(storage.NewMemoryStore(), describer, nil, Options{})

	sub := validSubmission()
	sub.EnhanceDescription = true

	receipt, err := flow.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "pothole near school", receipt.Report.Description)
	require.Len(t, receipt.Notices, 1)
	assert.Equal(t, NoticeDescription, receipt.Notices[0].Kind)
}

func TestSubmit_MissingHelpersProduceNotices(t *testing.T) {
	flow := NewFlow(storage.NewMemoryStore(), nil, nil, Options{})

	sub := validSubmission()
	sub.AutoClassify = true
	sub.EnhanceDescription = true

	receipt, err := flow.Submit(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, receipt.Notices, 2)
	assert.Equal(t, NoticeClassification, receipt.Notices[0].Kind)
	assert.Equal(t, NoticeDescription, receipt.Notices[1].Kind)
}

type failingStore struct {
	*storage.Store
}

func (failingStore) CreateReport(context.Context, *storage.Report) error {
	return errors.New("bucket unavailable")
}

func TestSubmit_StoreFailure(t *testing.T) {
	flow := NewFlow(failingStore{storage.NewMemoryStore()}, nil, nil, Options{})

	_, err := flow.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "bucket unavailable")
}
