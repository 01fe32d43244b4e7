package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertcast/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

// Backend returns the backend name.
func (r *sqliteAlertRepo) Backend() string {
	return BackendSQLite
}

func (r *sqliteAlertRepo) List(ctx context.Context) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, document FROM alerts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alert, err := decodeDocument(id, doc)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id models.AlertID) (*models.Alert, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, "SELECT document FROM alerts WHERE id = ?", id.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return decodeDocument(id.String(), doc)
}

func (r *sqliteAlertRepo) Save(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", alert.AlertID, err)
	}

	query := `
		INSERT INTO alerts (id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, alert.AlertID.String(), string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("save alert %s: %w", alert.AlertID, err)
	}
	return nil
}

func decodeDocument(id, doc string) (*models.Alert, error) {
	var alert models.Alert
	if err := json.Unmarshal([]byte(doc), &alert); err != nil {
		return nil, fmt.Errorf("parse alert %s: %w", id, err)
	}
	return &alert, nil
}
