package push

import (
	"sync"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/pkg/queue"
)

const subscriberBuffer = 32

// Hub distribui eventos em tempo real aos assinantes SSE de cada
// tenant. Assinante lento perde eventos em vez de travar os demais; a
// interface ressincroniza pela API quando reconecta.
type Hub struct {
	log *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan *queue.Event]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:         log,
		subscribers: make(map[string]map[chan *queue.Event]struct{}),
	}
}

// Subscribe registra um assinante do tenant. O cancelamento devolvido
// remove a inscrição e fecha o canal.
func (h *Hub) Subscribe(tenantID string) (<-chan *queue.Event, func()) {
	ch := make(chan *queue.Event, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.subscribers[tenantID]
	if !ok {
		subs = make(map[chan *queue.Event]struct{})
		h.subscribers[tenantID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subscribers[tenantID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subscribers, tenantID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish entrega o evento a todos os assinantes do tenant.
func (h *Hub) Publish(event *queue.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[event.TenantID] {
		select {
		case ch <- event:
		default:
			h.log.Warn("assinante lento, evento descartado",
				zap.String("tenant_id", event.TenantID),
				zap.String("event_id", event.ID))
		}
	}
}

// Subscribers informa quantos assinantes o tenant tem.
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[tenantID])
}
