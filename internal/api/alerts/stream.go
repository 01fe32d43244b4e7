package alerts

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	alertstore "github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/models"
	"github.com/good-yellow-bee/alertcast/internal/session"
)

// StreamHandler upgrades /ws/{alertID} requests into viewer sessions.
type StreamHandler struct {
	store    *alertstore.Store
	source   session.Source
	cfg      session.Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewStreamHandler creates a websocket handler. An empty allowedOrigins
// accepts any origin.
func NewStreamHandler(store *alertstore.Store, source session.Source, cfg session.Config, allowedOrigins []string, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		store:  store,
		source: source,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "api.stream").Logger(),
	}
}

// ServeHTTP rejects unknown alerts before upgrading, then runs the
// session until the viewer leaves.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil || !h.store.Exists(id) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug().Err(err).Str("alert_id", id.String()).Msg("websocket upgrade failed")
		return
	}

	_ = session.New(conn, id, h.source, h.store.Exists, h.cfg, h.logger).Run(r.Context())
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	hosts := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimSpace(o))
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		hosts[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Host)]
		return ok
	}
}
