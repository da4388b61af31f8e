// Package category defines the closed set of civic issue categories and
// normalizes free-text classifier output onto it.
package category

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Category is a supported civic issue category.
type Category string

// The supported categories. Adding one means updating All as well.
const (
	Pothole      Category = "Pothole"
	Garbage      Category = "Garbage"
	WaterLeakage Category = "Water Leakage"
	Streetlight  Category = "Streetlight"
	Sewage       Category = "Sewage"
	RoadDamage   Category = "Road Damage"
	Others       Category = "Others"
)

var all = []Category{Pothole, Garbage, WaterLeakage, Streetlight, Sewage, RoadDamage, Others}

// All returns every supported category in display order.
func All() []Category {
	return append([]Category(nil), all...)
}

// String returns the display name.
func (c Category) String() string {
	return string(c)
}

// Valid reports whether c is a member of the supported set.
func (c Category) Valid() bool {
	p, ok := Parse(string(c))
	return ok && p == c
}

// Parse matches label case-insensitively against the supported set.
func Parse(label string) (Category, bool) {
	label = strings.TrimSpace(label)
	for _, c := range all {
		if strings.EqualFold(string(c), label) {
			return c, true
		}
	}
	return "", false
}

// Normalize maps label onto the supported set, folding unknown labels to Others.
func Normalize(label string) Category {
	if c, ok := Parse(label); ok {
		return c
	}
	return Others
}

// ClampConfidence coerces v to a number in [0,1].
// Missing, non-numeric and NaN values become 0.
func ClampConfidence(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) {
		return 0
	}
	return math.Min(1, math.Max(0, f))
}

// Result is a normalized classification.
type Result struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// NewResult normalizes a raw label and confidence.
func NewResult(label string, confidence any) Result {
	return Result{
		Category:   Normalize(label),
		Confidence: ClampConfidence(confidence),
	}
}

// FromFields builds a Result from a decoded classifier object.
// A missing or non-string "category" folds to Others.
func FromFields(fields map[string]any) Result {
	label, _ := fields["category"].(string)
	return NewResult(label, fields["confidence"])
}
