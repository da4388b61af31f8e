package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/civicreport/storage"
)

// defaultName is shown when a profile has no name.
const defaultName = "Citizen"

// Dashboard is a user's summary view.
type Dashboard struct {
	Name    string               `json:"name"`
	Stats   storage.StatusCounts `json:"stats"`
	Reports []*storage.Report    `json:"reports"`
}

// Dashboard loads the profile name, status counts and reports (newest first).
func (f *Flow) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	name := defaultName
	profile, err := f.store.GetProfile(ctx, userID)
	switch {
	case err == nil:
		if profile.Name != "" {
			name = profile.Name
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load profile: %w", err)
	}

	stats, err := f.store.CountByStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}

	reports, err := f.store.ListReportsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	return &Dashboard{
		Name:    name,
		Stats:   stats,
		Reports: reports,
	}, nil
}
