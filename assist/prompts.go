package assist

import (
	"fmt"
	"strings"

	"github.com/c360studio/civicreport/category"
)

// descriptionPrompt turns a short citizen note into a formal complaint request.
func descriptionPrompt(userText string) string {
	return fmt.Sprintf(`You are a civic complaint assistant for a municipal reporting system.
Convert the following short input into a professional, formal complaint description for a government report.

Rules:
- Output ONLY the complaint description text. No intro, labels, or commentary.
- Keep it concise (2-4 sentences).
- Use formal, polite municipal language.
- Mention the issue, its impact, and request for prompt action.

Citizen input: %q`, userText)
}

// categoryHints describes what each category covers for the image classifier.
var categoryHints = map[category.Category]string{
	category.Pothole:      "road potholes, road holes, road pits",
	category.Garbage:      "waste, litter, trash dumps, overflowing bins",
	category.WaterLeakage: "water pipe leaks, flooding, waterlogging, broken pipes",
	category.Streetlight:  "broken/damaged street lights, non-functioning lights",
	category.Sewage:       "open drainage, blocked drains, sewage overflow, manhole issues",
	category.RoadDamage:   "cracked roads, broken pavements, damaged curbs, uneven surfaces",
	category.Others:       "anything that doesn't fit above categories",
}

// classificationPrompt asks for exactly one category as a JSON object.
func classificationPrompt() string {
	var b strings.Builder
	b.WriteString("You are a civic issue image classifier. Analyze this image and determine the type of civic/infrastructure problem shown.\n\n")
	b.WriteString("Classify the image into exactly ONE of these categories:\n")
	for _, c := range category.All() {
		fmt.Fprintf(&b, "- %s (%s)\n", c, categoryHints[c])
	}
	b.WriteString("\nRespond in EXACTLY this JSON format, nothing else:\n")
	b.WriteString(`{"category": "CategoryName", "confidence": 0.XX}`)
	b.WriteString("\n\nWhere confidence is a decimal between 0.0 and 1.0 representing how confident you are in the classification.")
	return b.String()
}
