package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore returns a memory store whose clock advances one minute per read.
func newTestStore() *Store {
	s := NewMemoryStore()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return s
}

func ptr(f float64) *float64 { return &f }

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusInProgress.Valid())
	assert.True(t, StatusResolved.Valid())
	assert.False(t, Status("pending").Valid())
	assert.False(t, Status("Closed").Valid())
}

func TestStore_CreateAndGetReport(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	r := &Report{
		UserID:        "user-1",
		Category:      "Pothole",
		Description:   "Deep pothole near the school gate.",
		Latitude:      ptr(19.076),
		Longitude:     ptr(72.8777),
		LocalImageURI: "/photos/pothole.jpg",
		Status:        StatusResolved, // ignored on create
	}
	require.NoError(t, s.CreateReport(ctx, r))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusPending, r.Status)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Category, got.Category)
	assert.Equal(t, r.Description, got.Description)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 19.076, *got.Latitude, 1e-9)
	assert.Equal(t, StatusPending, got.Status)
}

func TestStore_CreateReportRequiresUser(t *testing.T) {
	s := newTestStore()
	assert.Error(t, s.CreateReport(context.Background(), &Report{Category: "Garbage"}))
}

func TestStore_GetReportNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.GetReport(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListReportsByUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var ids []string
	for _, c := range []string{"Pothole", "Garbage", "Sewage"} {
		r := &Report{UserID: "user-1", Category: c}
		require.NoError(t, s.CreateReport(ctx, r))
		ids = append(ids, r.ID)
	}
	require.NoError(t, s.CreateReport(ctx, &Report{UserID: "user-2", Category: "Streetlight"}))

	reports, err := s.ListReportsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, reports, 3)

	// Newest first.
	assert.Equal(t, ids[2], reports[0].ID)
	assert.Equal(t, ids[1], reports[1].ID)
	assert.Equal(t, ids[0], reports[2].ID)

	none, err := s.ListReportsByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// flakyBucket fails Get for selected keys.
type flakyBucket struct {
	Bucket
	failures map[string]error
}

func (b *flakyBucket) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	if err, ok := b.failures[key]; ok {
		return nil, 0, err
	}
	return b.Bucket.Get(ctx, key)
}

func TestStore_ListReportsByUser_GetErrors(t *testing.T) {
	ctx := context.Background()
	reports := &flakyBucket{Bucket: NewMemoryBucket(), failures: map[string]error{}}
	s := NewStoreWithBuckets(reports, NewMemoryBucket(), NewMemoryBucket())

	kept := &Report{UserID: "user-1", Category: "Pothole"}
	require.NoError(t, s.CreateReport(ctx, kept))
	gone := &Report{UserID: "user-1", Category: "Garbage"}
	require.NoError(t, s.CreateReport(ctx, gone))

	t.Run("skips keys deleted after listing", func(t *testing.T) {
		reports.failures = map[string]error{gone.ID: ErrNotFound}

		got, err := s.ListReportsByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, kept.ID, got[0].ID)
	})

	t.Run("returns transport errors", func(t *testing.T) {
		outage := errors.New("nats: connection closed")
		reports.failures = map[string]error{gone.ID: outage}

		got, err := s.ListReportsByUser(ctx, "user-1")
		assert.ErrorIs(t, err, outage)
		assert.Nil(t, got)
	})

	t.Run("returns cancellation", func(t *testing.T) {
		reports.failures = map[string]error{kept.ID: context.Canceled}

		_, err := s.ListReportsByUser(ctx, "user-1")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStore_UpdateReportStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	r := &Report{UserID: "user-1", Category: "Pothole"}
	require.NoError(t, s.CreateReport(ctx, r))

	updated, err := s.UpdateReportStatus(ctx, r.ID, StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, updated.Status)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)

	_, err = s.UpdateReportStatus(ctx, r.ID, Status("Closed"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = s.UpdateReportStatus(ctx, "missing", StatusResolved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CountByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var ids []string
	for i := 0; i < 4; i++ {
		r := &Report{UserID: "user-1", Category: "Garbage"}
		require.NoError(t, s.CreateReport(ctx, r))
		ids = append(ids, r.ID)
	}
	_, err := s.UpdateReportStatus(ctx, ids[0], StatusInProgress)
	require.NoError(t, err)
	_, err = s.UpdateReportStatus(ctx, ids[1], StatusResolved)
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Total: 4, Pending: 2, InProgress: 1, Resolved: 1}, counts)

	empty, err := s.CountByStatus(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{}, empty)
}

func TestStore_Profiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.GetProfile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutProfile(ctx, &Profile{ID: "user-1", Email: "asha@example.com", Name: "Asha"}))
	p, err := s.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", p.Name)
	assert.False(t, p.CreatedAt.IsZero())

	assert.Error(t, s.PutProfile(ctx, &Profile{Email: "x@example.com"}))
}

func TestStore_Credentials(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	c := &Credential{UserID: "user-1", Email: "  Asha@Example.com ", PasswordHash: []byte("hash")}
	require.NoError(t, s.CreateCredential(ctx, c))
	assert.Equal(t, "asha@example.com", c.Email)

	got, err := s.GetCredential(ctx, "ASHA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, []byte("hash"), got.PasswordHash)

	dup := &Credential{UserID: "user-2", Email: "asha@example.com", PasswordHash: []byte("other")}
	assert.ErrorIs(t, s.CreateCredential(ctx, dup), ErrConflict)

	_, err = s.GetCredential(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialKey(t *testing.T) {
	key := credentialKey("asha@example.com")
	assert.Len(t, key, 64)
	assert.NotContains(t, key, "@")
	assert.Equal(t, key, credentialKey("asha@example.com"))
}

func TestMemoryBucket_Update(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket()

	require.NoError(t, b.Put(ctx, "k", []byte("v1")))
	_, rev, err := b.Get(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, b.Update(ctx, "k", []byte("v2"), rev))
	assert.ErrorIs(t, b.Update(ctx, "k", []byte("v3"), rev), ErrConflict)

	v, _, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
}

func TestBucketNames(t *testing.T) {
	assert.Equal(t, "CIVIC_REPORTS", BucketReports)
	assert.Equal(t, "CIVIC_PROFILES", BucketProfiles)
	assert.Equal(t, "CIVIC_CREDENTIALS", BucketCredentials)
}
