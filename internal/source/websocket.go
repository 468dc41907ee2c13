package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketSource reads JSON snapshots pushed by ingestion over a websocket
// and reconnects with capped exponential backoff.
type WebSocketSource struct {
	url       string
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger
}

// NewWebSocketSource creates a source dialling url.
func NewWebSocketSource(url string, logger *slog.Logger) *WebSocketSource {
	return &WebSocketSource{
		url:       url,
		baseDelay: 2 * time.Second,
		maxDelay:  60 * time.Second,
		logger:    logger.With(slog.String("component", "ws_source")),
	}
}

// WithBackoff overrides the reconnect delays.
func (s *WebSocketSource) WithBackoff(base, max time.Duration) *WebSocketSource {
	s.baseDelay, s.maxDelay = base, max
	return s
}

func (s *WebSocketSource) Name() string { return "websocket" }

// Run connects and reads until ctx is done.
func (s *WebSocketSource) Run(ctx context.Context, h Handler) error {
	delay := s.baseDelay
	for {
		delivered, err := s.runConnection(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		if delivered > 0 {
			delay = s.baseDelay
		}
		s.logger.WarnContext(ctx, "snapshot stream disconnected, reconnecting",
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.maxDelay {
			delay = s.maxDelay
		}
	}
}

// runConnection returns how many messages it read before the connection
// dropped.
func (s *WebSocketSource) runConnection(ctx context.Context, h Handler) (int, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	s.logger.InfoContext(ctx, "snapshot stream connected", slog.String("url", s.url))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// unblock ReadMessage on shutdown and keep the connection alive
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	read := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return read, fmt.Errorf("read: %w", err)
		}
		read++
		snap, err := decodeSnapshot(msg)
		if err != nil {
			s.logger.WarnContext(ctx, "unparseable snapshot dropped", slog.String("error", err.Error()))
			continue
		}
		_ = dispatch(ctx, s.logger, h, snap)
	}
}
