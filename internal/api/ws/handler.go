package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/api/middleware"
	"github.com/GriffinCanCode/launcher/internal/domain/events"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/monitoring"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// Frame is one message on the event stream
type Frame struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"` // unix milliseconds
	Data      interface{} `json:"data,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// Handler streams bus events to WebSocket clients
type Handler struct {
	bus      *events.Bus
	metrics  *monitoring.Metrics // optional
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(bus *events.Bus, metrics *monitoring.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		bus:     bus,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.IsLoopbackOrigin(origin)
			},
		},
	}
}

// HandleConnection upgrades the request and forwards every bus event until
// the client goes away. Slow clients lose events rather than stall the bus.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	out := make(chan Frame, sendBuffer)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	defer stop()

	subID := h.bus.SubscribeAll(func(e events.Event) {
		f := Frame{Type: e.EventType(), Timestamp: e.Timestamp().UnixMilli(), Data: e}
		select {
		case out <- f:
		case <-done:
		default:
			h.log.Warn("Event stream client is slow, dropping event", zap.String("event", e.EventType()))
		}
	})
	defer h.bus.Unsubscribe(subID)

	if err := h.write(conn, Frame{
		Type:      "system",
		Timestamp: time.Now().UnixMilli(),
		Data:      gin.H{"message": "connected"},
	}); err != nil {
		return
	}

	go h.readLoop(conn, out, done, stop)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case f := <-out:
			if err := h.write(conn, f); err != nil {
				h.log.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop answers keep-alive pings and notices disconnects
func (h *Handler) readLoop(conn *websocket.Conn, out chan<- Frame, done <-chan struct{}, stop func()) {
	defer stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "ping" {
			continue
		}
		select {
		case out <- Frame{Type: "pong", Timestamp: time.Now().UnixMilli()}:
		case <-done:
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, f Frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		h.log.Error("Failed to encode frame", zap.String("type", f.Type), zap.Error(err))
		return nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordWSMessage(f.Type)
	}
	return nil
}
