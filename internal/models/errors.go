package models

import "errors"

// ErrFieldNotFound is returned when a field id or name does not exist in an alert.
var ErrFieldNotFound = errors.New("field not found")

// ValidationError reports a malformed value or update combination.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
