package report

import "errors"

// Validation errors returned by Flow.Submit before anything is stored.
var (
	ErrMissingPhoto       = errors.New("please capture a photo of the issue")
	ErrMissingLocation    = errors.New("waiting for location, please ensure GPS is enabled")
	ErrMissingDescription = errors.New("please provide a description")
	ErrNotAuthenticated   = errors.New("you must be logged in to submit a report")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrInvalidLocation    = errors.New("coordinates out of range")
)

// IsValidation reports whether err is one of the submission validation errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingPhoto,
		ErrMissingLocation,
		ErrMissingDescription,
		ErrNotAuthenticated,
		ErrUnknownCategory,
		ErrInvalidLocation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
