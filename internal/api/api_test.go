package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/api/auth"
	"github.com/good-yellow-bee/alertcast/internal/hub"
	"github.com/good-yellow-bee/alertcast/internal/models"
	"github.com/good-yellow-bee/alertcast/internal/storage"
)

const (
	testUser     = "operator"
	testPassword = "correct-horse-9"
)

// testServer creates a server on a temporary SQLite database.
func testServer(t *testing.T, mutate func(*Config)) (*Server, *alerts.Store) {
	t.Helper()

	stor := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "alertcast.db"))
	if err := stor.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { stor.Close() })
	if err := stor.Migrate(); err != nil {
		t.Fatalf("migrate storage: %v", err)
	}

	h := hub.New[models.Event](hub.DefaultCapacity)
	t.Cleanup(h.Close)
	store := alerts.New(stor.Alerts(), h, zerolog.Nop())

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	cfg := &Config{
		Address:          "127.0.0.1:0",
		Users:            []auth.User{{Username: testUser, PasswordHash: string(hash)}},
		LockoutThreshold: 3,
		LockoutDuration:  time.Minute,
		PingInterval:     time.Minute,
		WriteTimeout:     time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, store, h, stor, zerolog.Nop())
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv, store
}

func doRequest(srv *Server, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.SetBasicAuth(testUser, testPassword)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, nil, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for nil config")
	}

	_, store := testServer(t, nil)
	h := hub.New[models.Event](1)
	defer h.Close()
	_, err := New(&Config{Users: []auth.User{{Username: "x", PasswordHash: "plain"}}}, store, h, nil, zerolog.Nop())
	if err == nil {
		t.Error("expected error for invalid password hash")
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{RateLimitPerSecond: 10}
	cfg.SetDefaults()

	if cfg.Address != ":8080" {
		t.Errorf("Address = %q, want :8080", cfg.Address)
	}
	if cfg.PingInterval != 30*time.Second {
		t.Errorf("PingInterval = %v, want 30s", cfg.PingInterval)
	}
	if cfg.RateLimitBurst != 20 {
		t.Errorf("RateLimitBurst = %d, want 20", cfg.RateLimitBurst)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := testServer(t, nil)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := doRequest(srv, http.MethodGet, path, nil, false)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200: %s", path, rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(srv, http.MethodGet, "/health/ready", nil, false)
	if !strings.Contains(rec.Body.String(), "storage_sqlite") {
		t.Errorf("ready response missing storage check: %s", rec.Body.String())
	}
}

func TestMutatingRoutesRequireAuth(t *testing.T) {
	srv, store := testServer(t, nil)

	body := map[string]string{"id": "A1", "name": "Donation"}
	rec := doRequest(srv, http.MethodPost, "/api/v1/alerts", body, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
	if store.Exists("A1") {
		t.Fatal("alert created without credentials")
	}

	rec = doRequest(srv, http.MethodPost, "/api/v1/alerts", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("authenticated create = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	// Reads stay public.
	rec = doRequest(srv, http.MethodGet, "/api/v1/alerts/A1", nil, false)
	if rec.Code != http.StatusOK {
		t.Errorf("public read = %d, want 200", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/alert/A1/update?alert_text=hi", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated legacy update = %d, want 401", rec.Code)
	}
	rec = doRequest(srv, http.MethodGet, "/alert/A1/update?alert_text=hi", nil, true)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok!" {
		t.Errorf("legacy update = %d %q, want 200 ok!", rec.Code, rec.Body.String())
	}
}

func TestAuthDisabledWithoutUsers(t *testing.T) {
	srv, _ := testServer(t, func(c *Config) { c.Users = nil })

	rec := doRequest(srv, http.MethodPost, "/api/v1/alerts", map[string]string{"id": "A1", "name": "n"}, false)
	if rec.Code != http.StatusCreated {
		t.Errorf("create without auth = %d, want 201", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := testServer(t, func(c *Config) {
		c.Users = nil
		c.RateLimitPerSecond = 0.001
		c.RateLimitBurst = 2
	})

	var last int
	for i := 0; i < 3; i++ {
		rec := doRequest(srv, http.MethodPost, "/api/v1/alerts", map[string]string{"name": "n"}, false)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", last)
	}

	// Reads are not limited.
	rec := doRequest(srv, http.MethodGet, "/api/v1/alerts", nil, false)
	if rec.Code != http.StatusOK {
		t.Errorf("list = %d, want 200", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/nope", nil, false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", resp.Error)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/health", nil, false)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
}

// TestServe_WebsocketThroughMiddleware runs the real server so the upgrade
// passes every middleware wrapper.
func TestServe_WebsocketThroughMiddleware(t *testing.T) {
	srv, store := testServer(t, nil)
	if err := store.Create(context.Background(), models.NewAlert("A1", "Donation")); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws/A1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	h := srv.source.(*hub.Hub[models.Event])
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := store.Notify("A1"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg["type"] != "update" || msg["alert_id"] != "A1" {
		t.Fatalf("unexpected message %v", msg)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	// The session ends with the server context.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after shutdown")
	}
}
