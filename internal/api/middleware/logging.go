// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
// It passes Hijack through so websocket upgrades keep working.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return hijack(rw.ResponseWriter, func() { rw.status = http.StatusSwitchingProtocols })
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func hijack(w http.ResponseWriter, onHijack func()) (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		onHijack()
	}
	return conn, rw, err
}

// RequestLogger returns a middleware that logs HTTP requests. Failed
// requests are always logged at info; the rest only when verbose.
func RequestLogger(logger zerolog.Logger, verbose bool) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()[:8]

			w.Header().Set("X-Request-ID", requestID)
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			level := zerolog.DebugLevel
			if verbose || wrapped.status >= 400 {
				level = zerolog.InfoLevel
			}
			logger.WithLevel(level).
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.status).
				Int("size", wrapped.size).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
