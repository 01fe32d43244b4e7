package alerts

import (
	"errors"
	"fmt"

	"github.com/good-yellow-bee/alertcast/internal/models"
)

var (
	// ErrNotFound is returned when an alert id is not in the store.
	ErrNotFound = errors.New("alert not found")
	// ErrAlreadyExists is returned by Create for a duplicate alert id.
	ErrAlreadyExists = errors.New("alert already exists")
)

// PersistenceError reports a failed write-through save. The in-memory
// document is left as it was before the operation.
type PersistenceError struct {
	AlertID models.AlertID
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist alert %s: %v", e.AlertID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func notFound(id models.AlertID) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// resultLabel maps an operation outcome to the store_mutations_total label.
func resultLabel(err error) string {
	var verr *models.ValidationError
	var perr *PersistenceError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound), errors.Is(err, models.ErrFieldNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "exists"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &perr):
		return "persist_error"
	default:
		return "rejected"
	}
}
