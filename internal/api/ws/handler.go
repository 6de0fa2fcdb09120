package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/termhub/internal/api/middleware"
	"github.com/GriffinCanCode/termhub/internal/events"
	"github.com/GriffinCanCode/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhub/internal/shared/id"
	"github.com/GriffinCanCode/termhub/internal/terminal"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxClientFrame = 64 * 1024
)

// Subscriber attaches listeners to session event topics
type Subscriber interface {
	Subscribe(sessionID string) (*events.Subscription, error)
}

// Sessions is the registry surface a stream drives
type Sessions interface {
	Lookup(sessionID string) (terminal.State, error)
	WriteWithOrigin(sessionID string, data []byte, origin string) error
	Resize(sessionID string, cols, rows int) error
}

// Handler manages WebSocket connections
type Handler struct {
	hub      Subscriber
	sessions Sessions
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. Metrics may be nil.
func NewHandler(hub Subscriber, sessions Sessions, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:      hub,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// checkOrigin accepts non-browser clients and pages served from loopback
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || middleware.IsLoopbackOrigin(origin)
}

// conn serializes writes; gorilla allows one concurrent writer
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	metrics *monitoring.Metrics
}

func (c *conn) send(frame ServerFrame) error {
	payload, err := sonic.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordWSMessage("out", frame.Type)
	}
	return nil
}

func (c *conn) closeWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// HandleConnection streams one session's events to the client and feeds
// the client's input back into the session
func (h *Handler) HandleConnection(c *gin.Context) {
	sid := c.Param("id")
	if !id.IsValidSessionID(sid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}
	if _, err := h.sessions.Lookup(sid); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	// Attach before upgrading so retained output is not missed
	sub, err := h.hub.Subscribe(sid)
	if err != nil {
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	}
	defer sub.Close()

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("session_id", sid),
			zap.Error(err),
		)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxClientFrame)

	connID := uuid.NewString()
	log := h.logger.With(
		zap.String("session_id", sid),
		zap.String("conn_id", connID),
	)
	log.Debug("Stream attached")

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	out := &conn{ws: ws, metrics: h.metrics}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		defer cancel()
		h.readLoop(out, sid, log)
	}()

	h.writeLoop(ctx, out, sub, log)
}

// writeLoop forwards bus events until the exit event, a closed topic or a
// dead client
func (h *Handler) writeLoop(ctx context.Context, out *conn, sub *events.Subscription, log *zap.Logger) {
	for {
		ev, err := sub.Next(ctx)
		switch {
		case errors.Is(err, events.ErrSubscriptionClosed):
			out.closeWith(websocket.CloseNormalClosure, "session closed")
			log.Debug("Stream ended: session closed")
			return
		case err != nil:
			log.Debug("Stream detached", zap.Error(err))
			return
		}

		if err := out.send(eventFrame(ev)); err != nil {
			log.Debug("Stream write failed", zap.Error(err))
			return
		}

		if ev.Type == events.TypeExit {
			out.closeWith(websocket.CloseNormalClosure, "session exited")
			log.Debug("Stream ended: session exited", zap.Int("exit_code", ev.ExitCode))
			return
		}
	}
}

func (h *Handler) readLoop(out *conn, sid string, log *zap.Logger) {
	for {
		_, payload, err := out.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var frame ClientFrame
		if err := sonic.Unmarshal(payload, &frame); err != nil {
			_ = out.send(errorFrame("malformed frame"))
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", frame.Type)
		}

		switch frame.Type {
		case TypeInput:
			err = h.sessions.WriteWithOrigin(sid, frame.Data, "")
		case TypeResize:
			err = h.sessions.Resize(sid, frame.Cols, frame.Rows)
		case TypePing:
			err = out.send(ServerFrame{Type: TypePong})
		default:
			err = out.send(errorFrame("unknown message type"))
		}

		if err != nil {
			_ = out.send(errorFrame(err.Error()))
		}
	}
}
