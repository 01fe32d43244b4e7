// Package storage provides persistence for alert documents.
package storage

import (
	"context"

	"github.com/good-yellow-bee/alertcast/internal/models"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Storage is the main interface for alert persistence.
type Storage interface {
	// Open prepares the backend (creates the directory or opens the database).
	Open() error
	// Close releases the backend.
	Close() error
	// Migrate brings the backend schema up to date.
	Migrate() error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Backend returns the backend name, used in logs and metrics.
	Backend() string

	Alerts() AlertRepository
}

// AlertRepository stores whole alert documents.
type AlertRepository interface {
	// List loads every stored alert ordered by id. Any unreadable document
	// fails the whole call.
	List(ctx context.Context) ([]*models.Alert, error)
	// GetByID returns nil, nil when the alert is not stored.
	GetByID(ctx context.Context, id models.AlertID) (*models.Alert, error)
	// Save writes the full document, replacing any previous version.
	Save(ctx context.Context, alert *models.Alert) error
}

// New returns an unopened Storage for the named backend.
func New(backend, dataDir, sqlitePath string) (Storage, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStorage(dataDir), nil
	case BackendSQLite:
		return NewSQLiteStorage(sqlitePath), nil
	default:
		return nil, &UnknownBackendError{Backend: backend}
	}
}

// UnknownBackendError is returned by New for unsupported backends.
type UnknownBackendError struct {
	Backend string
}

func (e *UnknownBackendError) Error() string {
	return "unknown storage backend: " + e.Backend
}
