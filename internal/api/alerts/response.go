package alerts

import (
	"encoding/json"
	"errors"
	"net/http"

	alertstore "github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/models"
	"github.com/good-yellow-bee/alertcast/internal/render"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeConflict         = "CONFLICT"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func (h *Handler) jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		h.logger.Debug().Err(err).Msg("json encode error")
	}
}

func (h *Handler) jsonData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		h.logger.Debug().Err(err).Msg("json encode error")
	}
}

func (h *Handler) jsonOK(w http.ResponseWriter, data any) {
	h.jsonData(w, http.StatusOK, data)
}


func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// storeError translates store and model errors into API errors.
func (h *Handler) storeError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	var perr *alertstore.PersistenceError
	switch {
	case errors.As(err, &verr):
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, verr.Error())
	case errors.Is(err, alertstore.ErrNotFound):
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
	case errors.Is(err, models.ErrFieldNotFound):
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "field not found")
	case errors.Is(err, alertstore.ErrAlreadyExists):
		h.jsonError(w, http.StatusConflict, errCodeConflict, "alert already exists")
	case errors.As(err, &perr):
		h.logger.Error().Err(err).Str("alert_id", perr.AlertID.String()).Msg("alert could not be saved")
		h.jsonError(w, http.StatusInternalServerError, errCodeInternalError, "alert could not be saved")
	default:
		h.logger.Error().Err(err).Msg("unexpected store error")
		h.jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
	}
}

// FieldResponse is one field of an alert.
type FieldResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// RenderedResponse is the substituted document.
type RenderedResponse struct {
	Text  string `json:"text"`
	HTML  string `json:"html"`
	Style string `json:"style"`
}

// AlertResponse is an alert document, with its rendering on single reads.
type AlertResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Text     string            `json:"text"`
	Style    string            `json:"style"`
	Fields   []FieldResponse   `json:"fields"`
	Rendered *RenderedResponse `json:"rendered,omitempty"`
}

func toFieldResponse(f models.Field) FieldResponse {
	return FieldResponse{
		ID:    f.ID.String(),
		Name:  f.Name.String(),
		Kind:  string(f.Value.Kind()),
		Value: f.Value.String(),
	}
}

func toAlertResponse(a *models.Alert) *AlertResponse {
	fields := make([]FieldResponse, 0, len(a.Fields))
	for _, f := range a.Fields {
		fields = append(fields, toFieldResponse(f))
	}
	return &AlertResponse{
		ID:     a.AlertID.String(),
		Name:   a.Name,
		Text:   a.LastText,
		Style:  a.LastStyle,
		Fields: fields,
	}
}

func withRendering(resp *AlertResponse, doc render.Document) *AlertResponse {
	resp.Rendered = &RenderedResponse{Text: doc.Text, HTML: doc.HTML, Style: doc.Style}
	return resp
}
