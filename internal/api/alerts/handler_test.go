package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertstore "github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/hub"
	"github.com/good-yellow-bee/alertcast/internal/models"
	"github.com/good-yellow-bee/alertcast/internal/session"
	"github.com/good-yellow-bee/alertcast/internal/storage"
)

type testEnv struct {
	store  *alertstore.Store
	hub    *hub.Hub[models.Event]
	router *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	stor := storage.NewFileStorage(t.TempDir())
	require.NoError(t, stor.Open())
	t.Cleanup(func() { stor.Close() })

	h := hub.New[models.Event](hub.DefaultCapacity)
	t.Cleanup(h.Close)
	store := alertstore.New(stor.Alerts(), h, zerolog.Nop())

	handler := NewHandler(store, zerolog.Nop())
	stream := NewStreamHandler(store, h, session.Config{WriteTimeout: time.Second}, nil, zerolog.Nop())

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/ws/{alertID}", stream)
	r.Route("/api/v1/alerts", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Get("/{alertID}", handler.Get)
		r.Put("/{alertID}", handler.Update)
		r.Post("/{alertID}/ping", handler.Ping)
		r.Post("/{alertID}/fields", handler.AddField)
		r.Patch("/{alertID}/fields/by-name/{fieldName}", handler.UpdateFieldByName)
		r.Patch("/{alertID}/fields/{fieldID}", handler.UpdateField)
		r.Put("/{alertID}/fields/{fieldID}", handler.ReplaceField)
		r.Delete("/{alertID}/fields/{fieldID}", handler.DeleteField)
	})
	r.Get("/alert/{alertID}/update", handler.LegacyUpdate)

	return &testEnv{store: store, hub: h, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), rec.Body.String())
	return resp.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), rec.Body.String())
	return resp.Error.Code
}

func (e *testEnv) createAlert(t *testing.T, id, text string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/alerts", map[string]string{"id": id, "name": "Test " + id, "text": text})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandler_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/alerts", map[string]string{
		"id": "donation", "name": " Donation ", "text": "Thanks **$who**", "style": "color: red",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[AlertResponse](t, rec)
	assert.Equal(t, "donation", created.ID)
	assert.Equal(t, "Donation", created.Name)
	require.NotNil(t, created.Rendered)
	assert.Contains(t, created.Rendered.HTML, "<strong>$who</strong>")

	rec = env.do(t, http.MethodGet, "/api/v1/alerts/donation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[AlertResponse](t, rec)
	assert.Equal(t, "Thanks **$who**", got.Text)
	assert.Equal(t, "color: red", got.Style)
	assert.Empty(t, got.Fields)
}

func TestHandler_CreateGeneratesID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/alerts", map[string]string{"name": "Anon"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeData[AlertResponse](t, rec)
	assert.Len(t, created.ID, 8)
	assert.True(t, env.store.Exists(models.AlertID(created.ID)))
}

func TestHandler_CreateErrors(t *testing.T) {
	env := newTestEnv(t)
	env.createAlert(t, "A1", "")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"duplicate id", map[string]string{"id": "A1", "name": "again"}, http.StatusConflict, errCodeConflict},
		{"missing name", map[string]string{"id": "A2"}, http.StatusBadRequest, errCodeValidationFailed},
		{"bad id", map[string]string{"id": "../x", "name": "n"}, http.StatusBadRequest, errCodeValidationFailed},
		{"malformed json", `{"name":`, http.StatusBadRequest, errCodeBadRequest},
		{"unknown field", `{"name":"n","color":"red"}`, http.StatusBadRequest, errCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/alerts", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestHandler_List(t *testing.T) {
	env := newTestEnv(t)
	env.createAlert(t, "b", "")
	env.createAlert(t, "a", "")

	rec := env.do(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[[]AlertResponse](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Nil(t, list[0].Rendered)
}

func TestHandler_NotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/alerts/nope"},
		{http.MethodPost, "/api/v1/alerts/nope/ping"},
		{http.MethodPut, "/api/v1/alerts/nope"},
	} {
		var body any
		if tc.method == http.MethodPut {
			body = map[string]string{"text": "x"}
		}
		rec := env.do(t, tc.method, tc.path, body)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.path)
		assert.Equal(t, errCodeNotFound, errorCode(t, rec))
	}
}

func TestHandler_UpdateAndPing(t *testing.T) {
	env := newTestEnv(t)
	env.createAlert(t, "A1", "old")
	sub := env.hub.Subscribe()
	defer sub.Close()

	text := "new"
	rec := env.do(t, http.MethodPut, "/api/v1/alerts/A1", UpdateRequest{Text: &text})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "new", decodeData[AlertResponse](t, rec).Text)

	rec = env.do(t, http.MethodPut, "/api/v1/alerts/A1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/A1/ping", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.EventContentChanged, ev.Kind)
	ev, err = sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.EventPinged, ev.Kind)
}

func TestHandler_FieldLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.createAlert(t, "A1", "$who gave $amt")

	rec := env.do(t, http.MethodPost, "/api/v1/alerts/A1/fields", AddFieldRequest{Name: "amt", Kind: "counter", Value: "100"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	amt := decodeData[FieldResponse](t, rec)
	assert.Equal(t, "counter", amt.Kind)
	assert.Equal(t, "100", amt.Value)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/A1/fields", AddFieldRequest{Name: "who", Kind: "text", Value: "viewer1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	who := decodeData[FieldResponse](t, rec)

	rec = env.do(t, http.MethodPatch, "/api/v1/alerts/A1/fields/"+amt.ID, map[string]int64{"incr": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "150", decodeData[FieldResponse](t, rec).Value)

	rec = env.do(t, http.MethodPatch, "/api/v1/alerts/A1/fields/by-name/who", map[string]string{"set": "viewer2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, who.ID, decodeData[FieldResponse](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/api/v1/alerts/A1", nil)
	got := decodeData[AlertResponse](t, rec)
	assert.Equal(t, "viewer2 gave 150", got.Rendered.Text)

	// Counter rejects text; the value must stay.
	rec = env.do(t, http.MethodPatch, "/api/v1/alerts/A1/fields/"+amt.ID, map[string]string{"set": "lots"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/alerts/A1/fields/"+amt.ID, `{"set":"1","incr":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/alerts/A1/fields/"+amt.ID, ReplaceFieldRequest{Kind: "text", Value: "a lot"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text", decodeData[FieldResponse](t, rec).Kind)

	rec = env.do(t, http.MethodDelete, "/api/v1/alerts/A1/fields/"+who.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/alerts/A1/fields/"+who.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/alerts/A1/fields/by-name/who", map[string]string{"set": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	a, ok := env.store.Get("A1")
	require.True(t, ok)
	require.Len(t, a.Fields, 1)
	assert.Equal(t, "a lot", a.Fields[0].Value.String())
}

func TestHandler_LegacyUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.createAlert(t, "A1", "old")

	rec := env.do(t, http.MethodGet, "/alert/A1/update?alert_text=hello%20there", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok!", rec.Body.String())

	a, _ := env.store.Get("A1")
	assert.Equal(t, "hello there", a.LastText)

	rec = env.do(t, http.MethodGet, "/alert/A1/update", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	a, _ = env.store.Get("A1")
	assert.Equal(t, "hello there", a.LastText)

	rec = env.do(t, http.MethodGet, "/alert/missing/update?alert_text=x", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_LegacyUpdateRejectsInvalidUTF8(t *testing.T) {
	env := newTestEnv(t)
	env.createAlert(t, "A1", "old")

	rec := env.do(t, http.MethodGet, "/alert/A1/update?alert_text=price%20%FF", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a, _ := env.store.Get("A1")
	assert.Equal(t, "old", a.LastText)
}

func TestStream_UnknownAlertRejectedBeforeUpgrade(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_EditReachesViewer(t *testing.T) {
	env := newTestEnv(t)
	env.createAlert(t, "A1", "start")
	env.createAlert(t, "B2", "other")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/A1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "init", "alert_id": "A1"}))
	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	text := "ignored"
	rec := env.do(t, http.MethodPut, "/api/v1/alerts/B2", UpdateRequest{Text: &text})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/alert/A1/update?alert_text=**hi**", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, session.TypeMarkdown, msg["type"])
	assert.Equal(t, "A1", msg["alert_id"])
	assert.Contains(t, msg["text"], "<strong>hi</strong>")

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, session.TypeStyle, msg["type"])

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/A1/ping", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, session.TypeUpdate, msg["type"])
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/A1", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := originChecker(nil)
	assert.True(t, open(req("https://evil.example")))

	check := originChecker([]string{"https://overlay.example.com", "localhost:8080"})
	assert.True(t, check(req("https://overlay.example.com")))
	assert.True(t, check(req("http://localhost:8080")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("https://evil.example")))
}
