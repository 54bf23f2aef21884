package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/connectivity"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/monitoring"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/shared/id"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only status stream
	},
}

// Source publishes connectivity transitions
type Source interface {
	Snapshot() connectivity.State
	Subscribe() (<-chan connectivity.Transition, func())
}

// Message is one frame sent to the client
type Message struct {
	Type       string                   `json:"type"`
	State      *connectivity.State      `json:"state,omitempty"`
	Transition *connectivity.Transition `json:"transition,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Timestamp  int64                    `json:"timestamp"`
}

type inbound struct {
	Type string `json:"type"`
}

// Handler streams connectivity changes over WebSocket
type Handler struct {
	source  Source
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(source Source, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{source: source, metrics: metrics, logger: logger}
}

// HandleConnection upgrades the request, sends the current state, then one
// "transition" message per phase change until either side closes
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := id.NewConnID()
	log := h.logger.With(zap.Stringer("conn", connID))
	log.Debug("Event stream opened", zap.String("remote", c.ClientIP()))
	defer func() {
		opened, _ := id.Created(connID.String())
		log.Debug("Event stream closed", zap.Duration("open_for", time.Since(opened)))
	}()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	transitions, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pongs := make(chan struct{}, 1)
	go h.readLoop(ctx, cancel, conn, pongs)

	state := h.source.Snapshot()
	if err := h.send(conn, Message{Type: "state", State: &state}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-transitions:
			if !ok {
				return
			}
			if err := h.send(conn, Message{Type: "transition", Transition: &tr}); err != nil {
				log.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-pongs:
			if err := h.send(conn, Message{Type: "pong"}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop owns all reads; writes stay on the handler goroutine
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, pongs chan<- struct{}) {
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		if msg.Type == "ping" {
			select {
			case pongs <- struct{}{}:
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg Message) error {
	msg.Timestamp = time.Now().Unix()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
