// Package report implements report submission and the per-user dashboard.
//
// Submit validates the form, optionally asks the AI helpers for a category
// and a formal description, stores the report and composes the complaint
// e-mail. AI failures never block a submission: they are returned as notices
// and the flow falls back to the citizen's own input.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/c360studio/civicreport/category"
	"github.com/c360studio/civicreport/notify"
	"github.com/c360studio/civicreport/storage"
)

// Describer turns a short note into a formal description.
type Describer interface {
	Generate(ctx context.Context, userText string) (string, error)
}

// Classifier suggests a category for a photo on disk.
type Classifier interface {
	ClassifyFile(ctx context.Context, path string) (category.Result, error)
}

// Store persists and queries reports.
type Store interface {
	CreateReport(ctx context.Context, r *storage.Report) error
	ListReportsByUser(ctx context.Context, userID string) ([]*storage.Report, error)
	CountByStatus(ctx context.Context, userID string) (storage.StatusCounts, error)
	GetProfile(ctx context.Context, userID string) (*storage.Profile, error)
}

// Submission is the report form.
type Submission struct {
	UserID      string   `json:"-"`
	PhotoPath   string   `json:"photo_path"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Description string   `json:"description"`

	// Category is the manually selected category. Empty lets
	// AutoClassify pick one, or falls back to Others.
	Category string `json:"category,omitempty"`

	AutoClassify       bool `json:"auto_classify,omitempty"`
	EnhanceDescription bool `json:"enhance_description,omitempty"`
}

// NoticeKind identifies the step a notice came from.
type NoticeKind string

const (
	NoticeClassification NoticeKind = "classification"
	NoticeLowConfidence  NoticeKind = "low_confidence"
	NoticeDescription    NoticeKind = "description"
)

// Notice is a non-blocking message about an AI step.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Receipt is the outcome of a successful submission.
type Receipt struct {
	Report         *storage.Report  `json:"report"`
	Email          notify.Email     `json:"email"`
	MailtoURL      string           `json:"mailto_url"`
	Classification *category.Result `json:"classification,omitempty"`
	Notices        []Notice         `json:"notices,omitempty"`
}

// Options configures a Flow.
type Options struct {
	// Recipient receives the complaint e-mail.
	Recipient string

	// MinConfidence flags AI classifications below it. Zero disables the check.
	MinConfidence float64

	Logger *slog.Logger
}

// Flow orchestrates report submission.
type Flow struct {
	store      Store
	describer  Describer
	classifier Classifier
	opts       Options
	logger     *slog.Logger
}

// NewFlow creates a Flow. describer and classifier may be nil, in which case
// the corresponding AI step reports a notice and is skipped.
func NewFlow(store Store, describer Describer, classifier Classifier, opts Options) *Flow {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		store:      store,
		describer:  describer,
		classifier: classifier,
		opts:       opts,
		logger:     logger,
	}
}

// Submit validates, enriches, stores and notifies.
func (f *Flow) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	if err := validate(sub); err != nil {
		return nil, err
	}

	receipt := &Receipt{}
	description := strings.TrimSpace(sub.Description)

	cat := category.Others
	if sub.Category != "" {
		cat, _ = category.Parse(sub.Category)
	} else if sub.AutoClassify {
		cat = f.classify(ctx, sub.PhotoPath, receipt)
	}

	if sub.EnhanceDescription {
		description = f.enhance(ctx, description, receipt)
	}

	r := &storage.Report{
		UserID:        sub.UserID,
		Category:      cat.String(),
		Description:   description,
		Latitude:      sub.Latitude,
		Longitude:     sub.Longitude,
		LocalImageURI: sub.PhotoPath,
	}
	if err := f.store.CreateReport(ctx, r); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	receipt.Report = r

	receipt.Email = notify.Compose(f.opts.Recipient, notify.Issue{
		Category:    r.Category,
		Description: r.Description,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	})
	receipt.MailtoURL = receipt.Email.MailtoURL()

	f.logger.Info("Report submitted",
		"report_id", r.ID,
		"user_id", r.UserID,
		"category", r.Category,
		"notices", len(receipt.Notices))

	return receipt, nil
}

// classify returns the suggested category, or Others when the AI step fails.
func (f *Flow) classify(ctx context.Context, path string, receipt *Receipt) category.Category {
	if f.classifier == nil {
		receipt.addNotice(NoticeClassification, "Automatic classification is not available. Please select category manually.")
		return category.Others
	}

	result, err := f.classifier.ClassifyFile(ctx, path)
	if err != nil {
		f.logger.Warn("Classification failed, using fallback category", "error", err)
		receipt.addNotice(NoticeClassification, err.Error())
		return category.Others
	}

	receipt.Classification = &result
	if f.opts.MinConfidence > 0 && result.Confidence < f.opts.MinConfidence {
		receipt.addNotice(NoticeLowConfidence, fmt.Sprintf(
			"Detected %s with low confidence (%.0f%%). Please verify the category.",
			result.Category, result.Confidence*100))
	}
	return result.Category
}

// enhance returns the formal description, or text unchanged when the AI step fails.
func (f *Flow) enhance(ctx context.Context, text string, receipt *Receipt) string {
	if f.describer == nil {
		receipt.addNotice(NoticeDescription, "Description generation is not available.")
		return text
	}

	generated, err := f.describer.Generate(ctx, text)
	if err != nil {
		f.logger.Warn("Description generation failed, keeping original text", "error", err)
		receipt.addNotice(NoticeDescription, err.Error())
		return text
	}
	return strings.TrimSpace(generated)
}

func (r *Receipt) addNotice(kind NoticeKind, message string) {
	r.Notices = append(r.Notices, Notice{Kind: kind, Message: message})
}

func validate(sub Submission) error {
	if strings.TrimSpace(sub.PhotoPath) == "" {
		return ErrMissingPhoto
	}
	if sub.Latitude == nil || sub.Longitude == nil {
		return ErrMissingLocation
	}
	if !validCoordinate(*sub.Latitude, 90) || !validCoordinate(*sub.Longitude, 180) {
		return ErrInvalidLocation
	}
	if strings.TrimSpace(sub.Description) == "" {
		return ErrMissingDescription
	}
	if sub.UserID == "" {
		return ErrNotAuthenticated
	}
	if sub.Category != "" {
		if _, ok := category.Parse(sub.Category); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, sub.Category)
		}
	}
	return nil
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}
