package notify

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestSubject(t *testing.T) {
	assert.Equal(t, "Civic Issue Report - Water Leakage", Subject("Water Leakage"))
}

func TestBody_WithLocation(t *testing.T) {
	body := Body(Issue{
		Category:    "Pothole",
		Description: "  Large pothole outside the bus depot.  ",
		Latitude:    ptr(19.0760),
		Longitude:   ptr(72.877655),
	})

	assert.True(t, strings.HasPrefix(body, "Respected Sir/Madam,"))
	assert.Contains(t, body, "Issue Details:\nLarge pothole outside the bus depot.\n\n")
	assert.Contains(t, body, "Latitude: 19.076000\nLongitude: 72.877655")
	assert.Contains(t, body, "https://www.google.com/maps?q=19.076000,72.877655")
	assert.True(t, strings.HasSuffix(body, "Sent via Civic Reporting App"))
}

func TestBody_WithoutLocation(t *testing.T) {
	for _, issue := range []Issue{
		{Description: "Overflowing bin"},
		{Description: "Overflowing bin", Latitude: ptr(1)},
	} {
		body := Body(issue)
		assert.Contains(t, body, "[Location unavailable - please add manually.]")
		assert.NotContains(t, body, "google.com/maps")
	}
}

func TestCompose(t *testing.T) {
	e := Compose("ward-office@example.gov", Issue{Category: "Sewage", Description: "Open manhole"})
	assert.Equal(t, "ward-office@example.gov", e.To)
	assert.Equal(t, "Civic Issue Report - Sewage", e.Subject)
	assert.Contains(t, e.Body, "Open manhole")
}

func TestMailtoURL(t *testing.T) {
	e := Compose("ward-office@example.gov", Issue{
		Category:    "Road Damage",
		Description: "Cracked road & broken curb",
		Latitude:    ptr(12.5),
		Longitude:   ptr(77.25),
	})

	raw := e.MailtoURL()
	assert.True(t, strings.HasPrefix(raw, "mailto:ward-office@example.gov?subject=Civic%20Issue%20Report%20-%20Road%20Damage&body="))
	assert.NotContains(t, raw, "+")
	assert.NotContains(t, raw, " ")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, e.Subject, q.Get("subject"))
	assert.Equal(t, e.Body, q.Get("body"))
}
