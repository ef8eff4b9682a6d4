package queue

import (
	"context"
	"time"
)

// Tipos de evento emitidos para o canal de push da interface.
const (
	EventQRCode     = "qr_code"
	EventStatus     = "whatsapp_status"
	EventNewMessage = "new_message"
)

type Event struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenantId"`
	ConnectionID string                 `json:"connectionId"`
	Type         string                 `json:"type"`
	Payload      map[string]interface{} `json:"payload"`
	CreatedAt    time.Time              `json:"createdAt"`
}

type Queue interface {
	Enqueue(ctx context.Context, event Event) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Event, error)
	Size(ctx context.Context) (int64, error)
	Close() error
}
