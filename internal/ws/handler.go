package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/velabrowser/vela/backend/internal/events"
	"github.com/velabrowser/vela/backend/internal/infrastructure/monitoring"
	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/providers/credentials"
	"github.com/velabrowser/vela/backend/internal/shared/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Both endpoints are bound to loopback; the shell is the only client.
		return true
	},
}

// RateConfig bounds the page channel. A compromised page script shares the
// channel with every other tab, so floods are throttled per connection.
type RateConfig struct {
	MessagesPerSecond float64
	Burst             int
	Enabled           bool
}

// Handler serves the two websocket surfaces: the page->host message channel
// and the UI event feed.
type Handler struct {
	controller *credentials.Controller
	bus        *events.Bus
	metrics    *monitoring.Metrics
	rateCfg    RateConfig
	log        *logging.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(controller *credentials.Controller, bus *events.Bus, metrics *monitoring.Metrics, rateCfg RateConfig, log *logging.Logger) *Handler {
	return &Handler{
		controller: controller,
		bus:        bus,
		metrics:    metrics,
		rateCfg:    rateCfg,
		log:        log,
	}
}

// HandlePageConnection receives one-way messages from injected page scripts.
// Messages the limiter rejects or that fail to decode are dropped, never
// answered: the channel carries no replies.
func (h *Handler) HandlePageConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("page channel upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	var limiter *rate.Limiter
	if h.rateCfg.Enabled {
		limiter = rate.NewLimiter(rate.Limit(h.rateCfg.MessagesPerSecond), h.rateCfg.Burst)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("page channel read error", zap.Error(err))
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			h.log.Warn("page channel rate limit exceeded, dropping message")
			continue
		}

		var msg types.PageMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.log.Warn("malformed page message dropped", zap.Error(err))
			continue
		}
		if msg.Tag == "" {
			continue
		}

		if h.metrics != nil {
			h.metrics.PageMessages.WithLabelValues(string(msg.Tag)).Inc()
		}
		h.controller.HandlePageMessage(msg)
	}
}

// HandleUIConnection pushes host events to the shell UI. The feed is
// push-only; clients send nothing but pings.
func (h *Handler) HandleUIConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ui feed upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	conn.WriteJSON(map[string]interface{}{
		"type":      "system",
		"message":   "connected to vela event feed",
		"timestamp": time.Now().Unix(),
	})

	// Reader drains pings and unblocks the writer on close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload := map[string]interface{}{
				"type":      string(ev.Type),
				"data":      ev.Data,
				"timestamp": ev.Time.Unix(),
			}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}
