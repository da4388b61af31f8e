// Package storage provides the civic report record store backed by NATS KV.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Report is a submitted civic issue.
type Report struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	LocalImageURI string    `json:"local_image_uri,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Profile is the public account information of a user.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential holds the password hash of an account.
type Credential struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatusCounts summarizes a user's reports.
type StatusCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
}

// Store provides record storage operations over three buckets.
type Store struct {
	reports     Bucket
	profiles    Bucket
	credentials Bucket
	now         func() time.Time
}

// NewStore creates a new Store with the given JetStream context.
// It creates the necessary KV buckets if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	reports, err := getOrCreateBucket(ctx, js, bucketConfig(BucketReports))
	if err != nil {
		return nil, fmt.Errorf("create reports bucket: %w", err)
	}

	profiles, err := getOrCreateBucket(ctx, js, bucketConfig(BucketProfiles))
	if err != nil {
		return nil, fmt.Errorf("create profiles bucket: %w", err)
	}

	credentials, err := getOrCreateBucket(ctx, js, bucketConfig(BucketCredentials))
	if err != nil {
		return nil, fmt.Errorf("create credentials bucket: %w", err)
	}

	return NewStoreWithBuckets(NewKVBucket(reports), NewKVBucket(profiles), NewKVBucket(credentials)), nil
}

// NewMemoryStore creates a Store that keeps everything in process memory.
func NewMemoryStore() *Store {
	return NewStoreWithBuckets(NewMemoryBucket(), NewMemoryBucket(), NewMemoryBucket())
}

// NewStoreWithBuckets creates a Store over arbitrary buckets.
func NewStoreWithBuckets(reports, profiles, credentials Bucket) *Store {
	return &Store{
		reports:     reports,
		profiles:    profiles,
		credentials: credentials,
		now:         time.Now,
	}
}

// CreateReport assigns an ID, sets the status to Pending and stores r.
func (s *Store) CreateReport(ctx context.Context, r *Report) error {
	if r.UserID == "" {
		return errors.New("report has no user")
	}

	r.ID = uuid.New().String()
	r.Status = StatusPending
	r.CreatedAt = s.now().UTC()
	r.UpdatedAt = r.CreatedAt

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := s.reports.Create(ctx, r.ID, data); err != nil {
		return fmt.Errorf("store report: %w", err)
	}

	return nil
}

// GetReport retrieves a report by ID.
func (s *Store) GetReport(ctx context.Context, id string) (*Report, error) {
	r, _, err := s.getReport(ctx, id)
	return r, err
}

func (s *Store) getReport(ctx context.Context, id string) (*Report, uint64, error) {
	data, rev, err := s.reports.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("get report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, 0, fmt.Errorf("unmarshal report: %w", err)
	}

	return &r, rev, nil
}

// ListReportsByUser returns the user's reports, newest first.
func (s *Store) ListReportsByUser(ctx context.Context, userID string) ([]*Report, error) {
	keys, err := s.reports.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list report keys: %w", err)
	}

	reports := make([]*Report, 0)
	for _, key := range keys {
		r, _, err := s.getReport(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue // Deleted after Keys
		}
		if err != nil {
			return nil, err
		}
		if r.UserID == userID {
			reports = append(reports, r)
		}
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})

	return reports, nil
}

// UpdateReportStatus moves a report to status.
// A concurrent modification of the same report returns ErrConflict.
func (s *Store) UpdateReportStatus(ctx context.Context, id string, status Status) (*Report, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r, rev, err := s.getReport(ctx, id)
	if err != nil {
		return nil, err
	}

	r.Status = status
	r.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	if err := s.reports.Update(ctx, id, data, rev); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update report: %w", err)
	}

	return r, nil
}

// CountByStatus counts the user's reports per status.
func (s *Store) CountByStatus(ctx context.Context, userID string) (StatusCounts, error) {
	reports, err := s.ListReportsByUser(ctx, userID)
	if err != nil {
		return StatusCounts{}, err
	}

	var counts StatusCounts
	for _, r := range reports {
		counts.Total++
		switch r.Status {
		case StatusPending:
			counts.Pending++
		case StatusInProgress:
			counts.InProgress++
		case StatusResolved:
			counts.Resolved++
		}
	}
	return counts, nil
}

// PutProfile creates or replaces a profile.
func (s *Store) PutProfile(ctx context.Context, p *Profile) error {
	if p.ID == "" {
		return errors.New("profile has no ID")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	if err := s.profiles.Put(ctx, p.ID, data); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}

	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	data, _, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}

	return &p, nil
}

// CreateCredential stores c, failing with ErrConflict if the e-mail is taken.
func (s *Store) CreateCredential(ctx context.Context, c *Credential) error {
	c.Email = NormalizeEmail(c.Email)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	if err := s.credentials.Create(ctx, credentialKey(c.Email), data); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("store credential: %w", err)
	}

	return nil
}

// GetCredential retrieves the credential registered for email.
func (s *Store) GetCredential(ctx context.Context, email string) (*Credential, error) {
	data, _, err := s.credentials.Get(ctx, credentialKey(NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}

	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}

	return &c, nil
}

// NormalizeEmail lower-cases and trims an e-mail address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// credentialKey derives a KV-safe key from a normalized e-mail.
func credentialKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
