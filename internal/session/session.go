// Package session drives one websocket connection bound to a single alert.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/alertcast/internal/hub"
	"github.com/good-yellow-bee/alertcast/internal/metrics"
	"github.com/good-yellow-bee/alertcast/internal/models"
)

// Conn is the subset of *websocket.Conn used by a session.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Source hands out event subscriptions.
type Source interface {
	Subscribe() *hub.Subscription[models.Event]
}

// Lookup reports whether an alert exists.
type Lookup func(id models.AlertID) bool

// Config holds connection timing.
type Config struct {
	// PingInterval is the keepalive period. Zero disables pings and the
	// read deadline that goes with them.
	PingInterval time.Duration
	// WriteTimeout bounds every frame written to the client.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default connection timing.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Session is one websocket connection bound to one alert id.
type Session struct {
	conn    Conn
	alertID models.AlertID
	source  Source
	exists  Lookup
	cfg     Config
	logger  zerolog.Logger
}

// New creates a session. Run must be called to start it.
func New(conn Conn, alertID models.AlertID, source Source, exists Lookup, cfg Config, logger zerolog.Logger) *Session {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Session{
		conn:    conn,
		alertID: alertID,
		source:  source,
		exists:  exists,
		cfg:     cfg,
		logger:  logger.With().Str("component", "session").Str("alert_id", alertID.String()).Logger(),
	}
}

// Run serves the connection until the client goes away, a transport
// error occurs or ctx is cancelled. A normal close returns nil. The
// connection is closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	metrics.SessionsActive.Inc()
	metrics.HubSubscribers.Inc()
	defer metrics.SessionsActive.Dec()
	defer metrics.HubSubscribers.Dec()

	// Subscribe before anything else so no event published after the
	// upgrade is missed.
	sub := s.source.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	defer s.conn.Close()

	s.logger.Debug().Msg("session started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.writeLoop(ctx, sub)
	})
	g.Go(func() error {
		defer cancel()
		return s.readLoop(ctx)
	})
	if s.cfg.PingInterval > 0 {
		g.Go(func() error {
			defer cancel()
			return s.keepalive(ctx)
		})
	}

	err := g.Wait()
	if err != nil {
		metrics.SessionErrors.Inc()
		s.logger.Error().Err(err).Msg("session ended with error")
		return err
	}
	s.logger.Debug().Msg("session closed")
	return nil
}

func (s *Session) writeLoop(ctx context.Context, sub *hub.Subscription[models.Event]) error {
	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			var lagged *hub.LaggedError
			switch {
			case errors.As(err, &lagged):
				metrics.SessionLaggedTotal.Add(float64(lagged.Missed))
				s.logger.Warn().Uint64("missed", lagged.Missed).Msg("session lagged behind")
				continue
			case errors.Is(err, hub.ErrClosed), ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}

		if ev.AlertID != s.alertID {
			continue
		}
		for _, frame := range Frames(ev) {
			if err := s.write(frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return transportError(err)
			}
		}
	}
}

func (s *Session) write(frame any) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(frame); err != nil {
		return err
	}
	metrics.SessionMessagesSent.WithLabelValues(frameType(frame)).Inc()
	return nil
}

func (s *Session) readLoop(ctx context.Context) error {
	if s.cfg.PingInterval > 0 {
		pongWait := 2 * s.cfg.PingInterval
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return transportError(err)
		}
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return transportError(err)
		}
		if mt != websocket.TextMessage {
			continue
		}

		if !s.exists(s.alertID) {
			s.logger.Debug().Msg("client message for an alert that no longer exists")
			continue
		}
		msg, err := ParseInbound(data)
		if err != nil {
			s.logger.Debug().Err(err).Msg("ignoring client message")
			continue
		}
		s.logger.Debug().Str("init_alert_id", msg.AlertID.String()).Msg("client init")
	}
}

func (s *Session) keepalive(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return transportError(err)
			}
		}
	}
}

// transportError filters out the errors that mean the peer went away.
func transportError(err error) error {
	if IsClosed(err) {
		return nil
	}
	return err
}

// IsClosed reports whether err means the connection was closed normally.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, io.EOF)
}
