// Package notify composes the municipal complaint e-mail sent after a report
// is filed.
package notify

import (
	"fmt"
	"net/url"
	"strings"
)

// Issue is the report content the e-mail is built from.
type Issue struct {
	Category    string
	Description string
	Latitude    *float64
	Longitude   *float64
}

// Email is a composed complaint message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Compose builds the complaint e-mail for issue addressed to recipient.
func Compose(recipient string, issue Issue) Email {
	return Email{
		To:      recipient,
		Subject: Subject(issue.Category),
		Body:    Body(issue),
	}
}

// Subject returns the complaint subject line.
func Subject(category string) string {
	return "Civic Issue Report - " + category
}

// Body returns the formal complaint body.
func Body(issue Issue) string {
	var b strings.Builder
	b.WriteString("Respected Sir/Madam,\n\n")
	b.WriteString("I would like to bring to your attention a civic issue that requires immediate action.\n\n")
	b.WriteString("Issue Details:\n")
	b.WriteString(strings.TrimSpace(issue.Description))
	b.WriteString("\n\n")
	b.WriteString(locationBlock(issue.Latitude, issue.Longitude))
	b.WriteString("\n\n")
	b.WriteString("Additional Information:\n")
	b.WriteString("The issue has been observed at the mentioned location and may cause inconvenience to residents and commuters if not addressed promptly.\n\n")
	b.WriteString("I kindly request the concerned department to take necessary action at the earliest.\n\n")
	b.WriteString("Thank you for your time and assistance.\n\n")
	b.WriteString("Regards,\nCitizen\nSent via Civic Reporting App")
	return b.String()
}

func locationBlock(lat, lng *float64) string {
	if lat == nil || lng == nil {
		return "Location Details:\n[Location unavailable - please add manually.]"
	}
	return fmt.Sprintf("Location Details:\nLatitude: %.6f\nLongitude: %.6f\nGoogle Maps Link:\n%s",
		*lat, *lng, MapsLink(*lat, *lng))
}

// MapsLink returns a Google Maps link for the coordinates.
func MapsLink(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", lat, lng)
}

// MailtoURL returns a mailto: URL that opens e pre-filled in a mail client.
// Spaces are encoded as %20, not '+'.
func (e Email) MailtoURL() string {
	return fmt.Sprintf("mailto:%s?subject=%s&body=%s",
		e.To, encodeComponent(e.Subject), encodeComponent(e.Body))
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
