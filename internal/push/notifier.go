// Package push leva os acontecimentos do atendimento até a interface:
// transições de conexão, desafios de pareamento e desfechos de triagem
// viram eventos na fila, consumidos pela pool que os entrega via SSE e
// webhooks.
package push

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/inbound"
	"github.com/jurisdesk/atendimento/internal/pkg/queue"
	"github.com/jurisdesk/atendimento/internal/storage/model"
	"github.com/jurisdesk/atendimento/internal/triage"
)

// Notifier converte notificações internas em eventos de fila.
// Implementa session.Notifier e triage.Publisher.
type Notifier struct {
	queue queue.Queue
	log   *zap.Logger
}

func NewNotifier(q queue.Queue, log *zap.Logger) *Notifier {
	return &Notifier{queue: q, log: log}
}

func (n *Notifier) ConnectionStatus(conn model.Connection, status model.ConnectionStatus) {
	n.enqueue(conn, queue.EventStatus, map[string]interface{}{
		"status": string(status),
	})
}

func (n *Notifier) PairingCode(conn model.Connection, code string) {
	n.enqueue(conn, queue.EventQRCode, map[string]interface{}{
		"qrCode": code,
	})
}

func (n *Notifier) TriageResult(conn model.Connection, msg inbound.Message, result triage.Result) {
	payload := map[string]interface{}{
		"action":     string(result.Action),
		"phone":      msg.Phone,
		"content":    msg.Content,
		"receivedAt": msg.ReceivedAt,
	}
	if msg.MediaURL != "" {
		payload["mediaUrl"] = msg.MediaURL
	}
	switch result.Action {
	case triage.ActionAIHandoff:
		payload["context"] = string(result.Context)
		payload["reply"] = result.Reply
	case triage.ActionNotifyAgent:
		payload["logId"] = result.LogID
		payload["ticketId"] = result.TicketID
		payload["contact"] = result.Contact
		payload["suggestion"] = result.Suggestion
	}

	n.enqueue(conn, queue.EventNewMessage, payload)
}

func (n *Notifier) enqueue(conn model.Connection, eventType string, payload map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := queue.Event{
		ID:           uuid.NewString(),
		TenantID:     conn.TenantID,
		ConnectionID: conn.ID,
		Type:         eventType,
		Payload:      payload,
		CreatedAt:    time.Now(),
	}
	if err := n.queue.Enqueue(ctx, event); err != nil {
		n.log.Error("erro ao enfileirar evento de push",
			zap.String("connection_id", conn.ID),
			zap.String("type", eventType),
			zap.Error(err))
	}
}
