package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"giftvault/server/internal/model"
	core "giftvault/server/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams live pool status to dashboard clients
type WebSocketHandler struct {
	registry *core.Registry
	stats    *core.StatsCollector
}

// NewWebSocketHandler creates a WebSocket handler
func NewWebSocketHandler(registry *core.Registry, stats *core.StatsCollector) *WebSocketHandler {
	return &WebSocketHandler{registry: registry, stats: stats}
}

// poolStatusMessage is one stats frame pushed to the client
type poolStatusMessage struct {
	Pools    []model.TierStats  `json:"pools"`
	Counters map[string]int64   `json:"counters"`
	Process  *core.ProcessStats `json:"process,omitempty"`
	At       time.Time          `json:"at"`
}

// PoolStatus GET /ws/pool-status
// Pushes a pool status frame every second until the client disconnects.
func (h *WebSocketHandler) PoolStatus(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Detect client disconnect
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	if err := h.sendPoolStatus(conn); err != nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			if err := h.sendPoolStatus(conn); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// sendPoolStatus writes one stats frame
func (h *WebSocketHandler) sendPoolStatus(conn *websocket.Conn) error {
	consumed, replenished, failed := h.registry.Counters()
	msg := poolStatusMessage{
		Pools: h.registry.Stats(false),
		Counters: map[string]int64{
			"consumed":    consumed,
			"replenished": replenished,
			"failed":      failed,
		},
		At: time.Now(),
	}
	if h.stats != nil {
		stats := h.stats.Collect()
		msg.Process = &stats
	}
	return conn.WriteJSON(msg)
}
