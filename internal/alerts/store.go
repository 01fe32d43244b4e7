// Package alerts holds the alert store: the single owner of every alert
// document. Edits to one alert are serialized, written through to storage
// and announced with exactly one event each.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/alertcast/internal/metrics"
	"github.com/good-yellow-bee/alertcast/internal/models"
	"github.com/good-yellow-bee/alertcast/internal/render"
	"github.com/good-yellow-bee/alertcast/internal/storage"
)

// Publisher receives the events produced by store operations.
type Publisher interface {
	Publish(ev models.Event) int
}

// entry guards one alert. Its lock is held for the whole of an edit,
// including the save and the publish.
type entry struct {
	mu    sync.RWMutex
	alert *models.Alert
	gone  bool
}

// Store is the in-memory alert map backed by an AlertRepository.
type Store struct {
	mu      sync.RWMutex
	alerts  map[models.AlertID]*entry
	repo    storage.AlertRepository
	backend string
	pub     Publisher
	logger  zerolog.Logger
}

// New creates an empty store. Call Load to populate it from repo.
func New(repo storage.AlertRepository, pub Publisher, logger zerolog.Logger) *Store {
	backend := "unknown"
	if b, ok := repo.(interface{ Backend() string }); ok {
		backend = b.Backend()
	}
	return &Store{
		alerts:  make(map[models.AlertID]*entry),
		repo:    repo,
		backend: backend,
		pub:     pub,
		logger:  logger.With().Str("component", "store").Logger(),
	}
}

// Load reads every stored alert. Any unreadable document fails the load
// and leaves the store empty.
func (s *Store) Load(ctx context.Context) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}

	loaded := make(map[models.AlertID]*entry, len(list))
	for _, a := range list {
		if a.Fields == nil {
			a.Fields = []models.Field{}
		}
		loaded[a.AlertID] = &entry{alert: a}
	}

	s.mu.Lock()
	s.alerts = loaded
	s.mu.Unlock()

	metrics.StoreAlerts.Set(float64(len(loaded)))
	s.logger.Info().Int("alerts", len(loaded)).Str("backend", s.backend).Msg("alerts loaded")
	return nil
}

func (s *Store) lookup(id models.AlertID) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts[id]
}

// Get returns a copy of the alert.
func (s *Store) Get(id models.AlertID) (*models.Alert, bool) {
	e := s.lookup(id)
	if e == nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gone {
		return nil, false
	}
	return e.alert.Clone(), true
}

// Exists reports whether id is in the store.
func (s *Store) Exists(id models.AlertID) bool {
	_, ok := s.Get(id)
	return ok
}

// List returns copies of all alerts ordered by id.
func (s *Store) List() []*models.Alert {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.alerts))
	for _, e := range s.alerts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.Alert, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		if !e.gone {
			out = append(out, e.alert.Clone())
		}
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AlertID < out[j].AlertID
	})
	return out
}

// Len returns the number of alerts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// Render returns the current rendered document of an alert.
func (s *Store) Render(id models.AlertID) (render.Document, error) {
	a, ok := s.Get(id)
	if !ok {
		return render.Document{}, notFound(id)
	}
	return render.Alert(a)
}

// Create persists a new alert, adds it to the store and publishes its
// rendered content.
func (s *Store) Create(ctx context.Context, a *models.Alert) (err error) {
	defer func() { s.count("create", err) }()

	if _, err := models.ParseAlertID(a.AlertID.String()); err != nil {
		return err
	}
	next := a.Clone()
	if next.Fields == nil {
		next.Fields = []models.Field{}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	doc, err := render.Alert(next)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[next.AlertID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, next.AlertID)
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.alerts[next.AlertID] = &entry{alert: next}
	metrics.StoreAlerts.Set(float64(len(s.alerts)))

	s.publish(models.ContentChanged(next.AlertID, doc.Text, doc.HTML, doc.Style))
	s.logger.Info().Str("alert_id", next.AlertID.String()).Str("name", next.Name).Msg("alert created")
	return nil
}

// Edit applies mutate to a copy of the alert, saves the result and
// publishes the new rendered content.
func (s *Store) Edit(ctx context.Context, id models.AlertID, mutate func(*models.Alert)) error {
	return s.edit(ctx, "edit", id, func(a *models.Alert) error {
		mutate(a)
		return nil
	})
}

// TryEdit is Edit for mutations that can fail. An error from mutate is
// returned unchanged and the edit is discarded: nothing is saved and no
// event is published.
func (s *Store) TryEdit(ctx context.Context, id models.AlertID, mutate func(*models.Alert) error) error {
	return s.edit(ctx, "edit", id, mutate)
}

func (s *Store) edit(ctx context.Context, op string, id models.AlertID, mutate func(*models.Alert) error) (err error) {
	defer func() { s.count(op, err) }()

	e := s.lookup(id)
	if e == nil {
		return notFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return notFound(id)
	}

	next := e.alert.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	next.AlertID = e.alert.AlertID
	if err := next.Validate(); err != nil {
		return err
	}

	doc, err := render.Alert(next)
	if err != nil {
		return err
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	e.alert = next

	s.publish(models.ContentChanged(id, doc.Text, doc.HTML, doc.Style))
	return nil
}

// Notify publishes a Pinged event for the alert without changing it.
func (s *Store) Notify(id models.AlertID) (err error) {
	defer func() { s.count("notify", err) }()

	e := s.lookup(id)
	if e == nil {
		return notFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return notFound(id)
	}
	s.publish(models.Pinged(id))
	return nil
}

// Reload re-reads one alert from storage after an out-of-band change. A
// document equal to the one in memory is ignored, so the store's own
// writes do not produce a second event. A missing document is forgotten.
func (s *Store) Reload(ctx context.Context, id models.AlertID) (bool, error) {
	if e := s.lookup(id); e != nil {
		return s.reloadExisting(ctx, e, id)
	}

	a, doc, err := s.read(ctx, id)
	if err != nil || a == nil {
		return false, err
	}

	s.mu.Lock()
	if _, ok := s.alerts[id]; ok {
		s.mu.Unlock()
		return false, nil
	}
	e := &entry{alert: a}
	e.mu.Lock()
	defer e.mu.Unlock()
	s.alerts[id] = e
	metrics.StoreAlerts.Set(float64(len(s.alerts)))
	s.mu.Unlock()

	s.reloaded(a, doc)
	return true, nil
}

func (s *Store) reloadExisting(ctx context.Context, e *entry, id models.AlertID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return false, nil
	}
	a, doc, err := s.read(ctx, id)
	if err != nil {
		return false, err
	}
	if a == nil {
		s.forgetLocked(id, e)
		return true, nil
	}
	if e.alert.Equal(a) {
		return false, nil
	}
	e.alert = a
	s.reloaded(a, doc)
	return true, nil
}

// read loads and renders the stored document. A nil alert means it is gone.
func (s *Store) read(ctx context.Context, id models.AlertID) (*models.Alert, render.Document, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, render.Document{}, fmt.Errorf("reload alert %s: %w", id, err)
	}
	if a == nil {
		return nil, render.Document{}, nil
	}
	if a.Fields == nil {
		a.Fields = []models.Field{}
	}
	doc, err := render.Alert(a)
	if err != nil {
		return nil, render.Document{}, err
	}
	return a, doc, nil
}

func (s *Store) reloaded(a *models.Alert, doc render.Document) {
	s.publish(models.ContentChanged(a.AlertID, doc.Text, doc.HTML, doc.Style))
	s.count("reload", nil)
	s.logger.Info().Str("alert_id", a.AlertID.String()).Msg("alert reloaded from storage")
}

// Forget drops an alert whose backing document was removed out of band.
// It reports whether the alert was present.
func (s *Store) Forget(id models.AlertID) bool {
	e := s.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return false
	}
	s.forgetLocked(id, e)
	return true
}

// forgetLocked marks e gone and removes it from the map. The caller holds
// e.mu, so no edit of the alert can run between the decision to forget it
// and its removal. Nothing waits on an entry lock while holding s.mu.
func (s *Store) forgetLocked(id models.AlertID, e *entry) {
	e.gone = true

	s.mu.Lock()
	if s.alerts[id] == e {
		delete(s.alerts, id)
	}
	metrics.StoreAlerts.Set(float64(len(s.alerts)))
	s.mu.Unlock()

	s.logger.Info().Str("alert_id", id.String()).Msg("alert forgotten")
}

// persist saves a. The save runs to completion even if ctx is cancelled
// once started.
func (s *Store) persist(ctx context.Context, a *models.Alert) error {
	start := time.Now()
	err := s.repo.Save(context.WithoutCancel(ctx), a)
	metrics.StorePersistDuration.WithLabelValues(s.backend).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error().Err(err).Str("alert_id", a.AlertID.String()).Str("backend", s.backend).Msg("failed to persist alert")
		return &PersistenceError{AlertID: a.AlertID, Err: err}
	}
	return nil
}

func (s *Store) publish(ev models.Event) {
	n := s.pub.Publish(ev)
	metrics.HubPublishedTotal.WithLabelValues(string(ev.Kind)).Inc()
	s.logger.Debug().
		Str("alert_id", ev.AlertID.String()).
		Str("kind", string(ev.Kind)).
		Int("subscribers", n).
		Msg("event published")
}

func (s *Store) count(op string, err error) {
	metrics.StoreMutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}
