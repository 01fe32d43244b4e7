package alerts

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	alertstore "github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/models"
)

// Handler handles alert endpoints.
type Handler struct {
	store  *alertstore.Store
	logger zerolog.Logger
}

func NewHandler(store *alertstore.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.With().Str("component", "api.alerts").Logger(),
	}
}

// List returns all alerts ordered by id.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list := h.store.List()
	items := make([]*AlertResponse, 0, len(list))
	for _, a := range list {
		items = append(items, toAlertResponse(a))
	}
	h.jsonOK(w, items)
}

// Create creates an alert. The id is generated when the request has none.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := req.toAlert()
	if err != nil {
		h.storeError(w, err)
		return
	}
	if err := h.store.Create(r.Context(), a); err != nil {
		h.storeError(w, err)
		return
	}
	h.respondAlert(w, http.StatusCreated, a.AlertID)
}

// Get returns one alert with its rendering.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	h.respondAlert(w, http.StatusOK, id)
}

// Update changes the name, text or style of an alert.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.Update(r.Context(), id, req.toUpdate()); err != nil {
		h.storeError(w, err)
		return
	}
	h.respondAlert(w, http.StatusOK, id)
}

// Ping asks every viewer of the alert to refresh.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	if err := h.store.Notify(id); err != nil {
		h.storeError(w, err)
		return
	}
	jsonNoContent(w)
}

// AddField appends a field to an alert.
func (h *Handler) AddField(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	var req AddFieldRequest
	if !h.decode(w, r, &req) {
		return
	}
	name, value, err := req.parse()
	if err != nil {
		h.storeError(w, err)
		return
	}
	fieldID, err := h.store.AddField(r.Context(), id, name, value)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.respondField(w, http.StatusCreated, id, fieldID)
}

// UpdateField sets, increments or renames a field addressed by id.
func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	fieldID, err := models.ParseFieldID(chi.URLParam(r, "fieldID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	u, ok := h.fieldUpdate(w, r)
	if !ok {
		return
	}
	if err := h.store.UpdateField(r.Context(), id, fieldID, u); err != nil {
		h.storeError(w, err)
		return
	}
	h.respondField(w, http.StatusOK, id, fieldID)
}

// UpdateFieldByName updates the first field carrying the given name.
func (h *Handler) UpdateFieldByName(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	raw, err := url.PathUnescape(chi.URLParam(r, "fieldName"))
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid field name")
		return
	}
	name, err := models.ParseFieldName(raw)
	if err != nil {
		h.storeError(w, err)
		return
	}
	u, ok := h.fieldUpdate(w, r)
	if !ok {
		return
	}
	fieldID, err := h.store.UpdateFieldByName(r.Context(), id, name, u)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.respondField(w, http.StatusOK, id, fieldID)
}

// ReplaceField swaps a field's value, possibly changing its kind.
func (h *Handler) ReplaceField(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	fieldID, err := models.ParseFieldID(chi.URLParam(r, "fieldID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	var req ReplaceFieldRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, err := req.parse()
	if err != nil {
		h.storeError(w, err)
		return
	}
	if err := h.store.ReplaceField(r.Context(), id, fieldID, value); err != nil {
		h.storeError(w, err)
		return
	}
	h.respondField(w, http.StatusOK, id, fieldID)
}

// DeleteField removes a field.
func (h *Handler) DeleteField(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	fieldID, err := models.ParseFieldID(chi.URLParam(r, "fieldID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	if err := h.store.RemoveField(r.Context(), id, fieldID); err != nil {
		h.storeError(w, err)
		return
	}
	jsonNoContent(w)
}

// LegacyUpdate serves GET-only integrations such as stream deck buttons.
// With alert_text it replaces the text, otherwise it pings viewers.
func (h *Handler) LegacyUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil || !h.store.Exists(id) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}

	if r.URL.Query().Has("alert_text") {
		err = h.store.SetText(r.Context(), id, r.URL.Query().Get("alert_text"))
	} else {
		err = h.store.Notify(id)
	}
	var verr *models.ValidationError
	switch {
	case errors.Is(err, alertstore.ErrNotFound):
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error().Err(err).Str("alert_id", id.String()).Msg("legacy update failed")
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok!")
}

func (h *Handler) alertID(w http.ResponseWriter, r *http.Request) (models.AlertID, bool) {
	id, err := models.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return "", false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) fieldUpdate(w http.ResponseWriter, r *http.Request) (models.FieldUpdate, bool) {
	var req UpdateFieldRequest
	if !h.decode(w, r, &req) {
		return models.FieldUpdate{}, false
	}
	u, err := req.toUpdate()
	if err != nil {
		h.storeError(w, err)
		return models.FieldUpdate{}, false
	}
	return u, true
}

func (h *Handler) respondAlert(w http.ResponseWriter, status int, id models.AlertID) {
	a, ok := h.store.Get(id)
	if !ok {
		h.storeError(w, alertstore.ErrNotFound)
		return
	}
	doc, err := h.store.Render(id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.jsonData(w, status, withRendering(toAlertResponse(a), doc))
}

func (h *Handler) respondField(w http.ResponseWriter, status int, id models.AlertID, fieldID models.FieldID) {
	a, ok := h.store.Get(id)
	if !ok {
		h.storeError(w, alertstore.ErrNotFound)
		return
	}
	f, ok := a.FieldByID(fieldID)
	if !ok {
		h.storeError(w, models.ErrFieldNotFound)
		return
	}
	h.jsonData(w, status, toFieldResponse(f))
}
