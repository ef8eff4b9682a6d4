package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/api/middleware"
	"github.com/jurisdesk/atendimento/internal/push"
)

const heartbeatInterval = 25 * time.Second

type EventsHandler struct {
	hub *push.Hub
	log *zap.Logger
}

func NewEventsHandler(hub *push.Hub, log *zap.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, log: log}
}

func (h *EventsHandler) Register(r *gin.RouterGroup) {
	r.GET("/events", h.stream)
}

// stream entrega eventos do tenant via Server-Sent Events. A conexão
// permanece aberta até o cliente desconectar.
func (h *EventsHandler) stream(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	events, cancel := h.hub.Subscribe(tenantID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.log.Debug("assinante SSE conectado", zap.String("tenant_id", tenantID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.log.Error("erro ao serializar evento SSE", zap.Error(err))
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			return true
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.log.Debug("assinante SSE desconectado", zap.String("tenant_id", tenantID))
}
