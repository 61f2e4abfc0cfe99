// Package stream serves the live frame channel: one websocket connection is
// one posture session.
package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/posture/internal/adapters/http/api"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
)

// Message types exchanged over the socket.
const (
	TypeFrame      = "frame"
	TypeCalibrate  = "calibrate"
	TypeSession    = "session"
	TypeStatus     = "status"
	TypeCalibrated = "calibrated"
	TypeError      = "error"
)

const (
	defaultReadLimit    = 256 << 10
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 5 * time.Second
)

// SessionFactory opens per-connection sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (*service.Session, error)
	Now() time.Time
}

// inbound is a client message. A frame without ts is stamped on arrival.
type inbound struct {
	Type      string              `json:"type"`
	TS        *int64              `json:"ts,omitempty"`
	Landmarks model.LandmarkFrame `json:"landmarks,omitempty"`
}

type statusReply struct {
	Type string `json:"type"`
	service.Status
}

type controlReply struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Handler upgrades requests and drives one session per connection.
type Handler struct {
	sessions     SessionFactory
	upgrader     websocket.Upgrader
	readLimit    int64
	pingInterval time.Duration
	logger       logger.Logger
}

// NewHandler creates a websocket handler backed by sessions.
func NewHandler(sessions SessionFactory, opts ...Option) *Handler {
	h := &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		readLimit:    defaultReadLimit,
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("stream")
	}
	return h
}

// Register attaches the session endpoint to mux.
func (h *Handler) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/api/session", api.MetricsMiddleware(h.HandleSession, "session"))
}

// HandleSession handles GET /api/session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sess, err := h.sessions.NewSession(ctx)
	if err != nil {
		h.logger.Error(ctx, "open session failed", logger.Error(err))
		_ = h.write(conn, jsonCodec, controlReply{Type: TypeError, Error: "session unavailable"})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(writeTimeout))
		return
	}
	defer sess.Close()

	if err := h.write(conn, jsonCodec, controlReply{Type: TypeSession, SessionID: sess.ID()}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	h.keepAlive(conn, done)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn(ctx, "websocket closed unexpectedly", logger.String("session", sess.ID()), logger.Error(err))
			}
			return
		}
		c := codecFor(mt)
		if err := h.write(conn, c, h.dispatch(ctx, sess, c, data)); err != nil {
			h.logger.Warn(ctx, "websocket write failed", logger.String("session", sess.ID()), logger.Error(err))
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, sess *service.Session, c codec, data []byte) any {
	var in inbound
	if err := c.unmarshal(data, &in); err != nil {
		return controlReply{Type: TypeError, Error: "invalid message"}
	}
	switch in.Type {
	case TypeFrame:
		now := h.sessions.Now()
		if in.TS != nil && *in.TS > 0 {
			now = time.UnixMilli(*in.TS)
		}
		return statusReply{Type: TypeStatus, Status: sess.Process(ctx, in.Landmarks, now)}
	case TypeCalibrate:
		sess.Calibrate()
		return controlReply{Type: TypeCalibrated}
	default:
		return controlReply{Type: TypeError, Error: "unknown message type"}
	}
}

func (h *Handler) write(conn *websocket.Conn, c codec, v any) error {
	data, err := c.marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(c.messageType, data)
}

// keepAlive pings the client until done and extends the read deadline on
// every pong. A client that stops answering is disconnected by the deadline.
func (h *Handler) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	wait := 2 * h.pingInterval
	conn.SetReadLimit(h.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			}
		}
	}()
}
