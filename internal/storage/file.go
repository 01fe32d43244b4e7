package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/good-yellow-bee/alertcast/internal/models"
)

// FileStorage keeps one JSON file per alert, named by the alert id.
type FileStorage struct {
	dir    string
	alerts *fileAlertRepo
}

// NewFileStorage creates a file storage rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{
		dir:    dir,
		alerts: &fileAlertRepo{dir: dir},
	}
}

// Open creates the data directory if needed.
func (s *FileStorage) Open() error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStorage) Close() error {
	return nil
}

// Migrate is a no-op; documents carry their whole state.
func (s *FileStorage) Migrate() error {
	return nil
}

// Ping checks the data directory is still there.
func (s *FileStorage) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", s.dir)
	}
	return nil
}

// Backend returns "file".
func (s *FileStorage) Backend() string {
	return BackendFile
}

// Dir returns the data directory.
func (s *FileStorage) Dir() string {
	return s.dir
}

// Alerts returns the alert repository.
func (s *FileStorage) Alerts() AlertRepository {
	return s.alerts
}

// IsAlertFile reports whether a directory entry name can hold an alert.
// Dot-prefixed names are in-flight temporary files.
func IsAlertFile(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".")
}

// AlertIDFromPath returns the alert id encoded in a file path.
func AlertIDFromPath(path string) (models.AlertID, bool) {
	name := filepath.Base(path)
	if !IsAlertFile(name) {
		return "", false
	}
	id, err := models.ParseAlertID(name)
	if err != nil {
		return "", false
	}
	return id, true
}

type fileAlertRepo struct {
	dir string
}

func (r *fileAlertRepo) path(id models.AlertID) string {
	return filepath.Join(r.dir, id.String())
}

// Backend returns the backend name.
func (r *fileAlertRepo) Backend() string {
	return BackendFile
}

func (r *fileAlertRepo) List(ctx context.Context) ([]*models.Alert, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var alerts []*models.Alert
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || !IsAlertFile(entry.Name()) {
			continue
		}
		alert, err := readAlertFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].AlertID < alerts[j].AlertID
	})
	return alerts, nil
}

func (r *fileAlertRepo) GetByID(ctx context.Context, id models.AlertID) (*models.Alert, error) {
	alert, err := readAlertFile(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return alert, err
}

// Save writes to a temporary file and renames it over the old document so
// readers never observe a partial write.
func (r *fileAlertRepo) Save(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", alert.AlertID, err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+alert.AlertID.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write alert %s: %w", alert.AlertID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync alert %s: %w", alert.AlertID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close alert %s: %w", alert.AlertID, err)
	}
	if err := os.Chmod(tmpName, 0640); err != nil {
		return fmt.Errorf("chmod alert %s: %w", alert.AlertID, err)
	}
	if err := os.Rename(tmpName, r.path(alert.AlertID)); err != nil {
		return fmt.Errorf("rename alert %s: %w", alert.AlertID, err)
	}
	return nil
}

func readAlertFile(path string) (*models.Alert, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alert file: %w", err)
	}
	var alert models.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, fmt.Errorf("parse alert file %s: %w", path, err)
	}
	if want := filepath.Base(path); alert.AlertID.String() != want {
		return nil, fmt.Errorf("parse alert file %s: alert id %q does not match file name", path, alert.AlertID)
	}
	return &alert, nil
}
