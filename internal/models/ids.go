package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// maxAlertIDLength bounds alert ids, which are also used as file names.
const maxAlertIDLength = 64

// AlertID identifies an alert document. It doubles as the name of the
// alert's backing file, so only a filename-safe alphabet is accepted.
type AlertID string

// ParseAlertID validates s and converts it to an AlertID.
func ParseAlertID(s string) (AlertID, error) {
	if s == "" {
		return "", &ValidationError{Field: "alert_id", Message: "alert id is required"}
	}
	if len(s) > maxAlertIDLength {
		return "", &ValidationError{
			Field:   "alert_id",
			Message: fmt.Sprintf("alert id must be %d characters or less", maxAlertIDLength),
		}
	}
	for _, r := range s {
		if !isIDRune(r) {
			return "", &ValidationError{
				Field:   "alert_id",
				Message: "alert id may only contain letters, digits, '-' and '_'",
			}
		}
	}
	return AlertID(s), nil
}

// NewAlertID returns a random short alert id.
func NewAlertID() AlertID {
	return AlertID(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func (id AlertID) String() string {
	return string(id)
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

// FieldID identifies a field within one alert. Ids are generated by the
// store and never reused.
type FieldID string

// NewFieldID returns a fresh field id.
func NewFieldID() FieldID {
	return FieldID(uuid.New().String())
}

// ParseFieldID converts s to a FieldID.
func ParseFieldID(s string) (FieldID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ValidationError{Field: "field_id", Message: "field id is required"}
	}
	return FieldID(s), nil
}

func (id FieldID) String() string {
	return string(id)
}

// FieldName is the human label of a field and the token used in templates
// ("$name"). Names are not required to be unique.
type FieldName string

// ParseFieldName validates s and converts it to a FieldName.
func ParseFieldName(s string) (FieldName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ValidationError{Field: "name", Message: "field name is required"}
	}
	if len(s) > 100 {
		return "", &ValidationError{Field: "name", Message: "field name must be 100 characters or less"}
	}
	return FieldName(s), nil
}

func (n FieldName) String() string {
	return string(n)
}
