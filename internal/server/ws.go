package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/view"
)

// Client message types on /ws/session.
const (
	wsTypeStart  = "start"
	wsTypeCancel = "cancel"
)

// Server message types on /ws/session.
const (
	wsTypeView   = "view"
	wsTypeResult = "start_result"
	wsTypeError  = "error"
)

type wsClientMessage struct {
	Type string `json:"type"`
}

type wsServerMessage struct {
	Type   string            `json:"type"`
	View   *view.View        `json:"view,omitempty"`
	Result *auth.StartResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// viewSink keeps only the newest undelivered view so a slow connection
// never blocks a broadcast.
type viewSink struct {
	mu      sync.Mutex
	pending *view.View
	ready   chan struct{}
}

func newViewSink() *viewSink {
	return &viewSink{ready: make(chan struct{}, 1)}
}

// Show implements view.Sink.
func (s *viewSink) Show(v view.View) error {
	s.mu.Lock()
	s.pending = &v
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return nil
}

func (s *viewSink) take() *view.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.pending
	s.pending = nil
	return v
}

// sessionSocket serves one view controller per WebSocket connection.
type sessionSocket struct {
	sc             *ServerContext
	originPatterns []string
	insecureOrigin bool
	logger         *slog.Logger
}

func (h *sessionSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	logger := h.logger.With(logging.UserHash(userID))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.insecureOrigin,
	})
	if err != nil {
		logger.Warn("Failed to accept WebSocket", logging.Err(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// Server shutdown ends every session.
		select {
		case <-h.sc.Context().Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	sink := newViewSink()
	ctrl := view.NewController(userID, h.sc.Store(), h.sc.Bus(), h.sc.Auth(), sink, h.logger)
	defer ctrl.Close()
	if err := ctrl.Open(ctx); err != nil {
		logger.Warn("Failed to open session view", logging.Err(err))
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	logger.Debug("Session view connected")
	go h.writeViews(ctx, cancel, conn, sink)
	h.readCommands(ctx, conn, ctrl, logger)

	conn.Close(websocket.StatusNormalClosure, "")
	logger.Debug("Session view disconnected")
}

func (h *sessionSocket) writeViews(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sink *viewSink) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sink.ready:
			v := sink.take()
			if v == nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, wsServerMessage{Type: wsTypeView, View: v}); err != nil {
				return
			}
		}
	}
}

func (h *sessionSocket) readCommands(ctx context.Context, conn *websocket.Conn, ctrl *view.Controller, logger *slog.Logger) {
	for {
		var msg wsClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				logger.Debug("WebSocket read ended", logging.Err(err))
			}
			return
		}

		var reply wsServerMessage
		switch msg.Type {
		case wsTypeStart:
			res, err := ctrl.StartAuth(ctx)
			if err != nil {
				reply = wsServerMessage{Type: wsTypeError, Error: err.Error()}
			} else {
				reply = wsServerMessage{Type: wsTypeResult, Result: &res}
			}
		case wsTypeCancel:
			if err := ctrl.CancelAuth(ctx); err != nil {
				reply = wsServerMessage{Type: wsTypeError, Error: err.Error()}
			} else {
				continue
			}
		default:
			reply = wsServerMessage{Type: wsTypeError, Error: "unknown message type " + msg.Type}
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return
		}
	}
}
