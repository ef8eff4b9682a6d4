package push

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/pkg/queue"
)

func TestHubDeliversToTenantSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())

	chA, cancelA := hub.Subscribe("tenant-1")
	defer cancelA()
	chB, cancelB := hub.Subscribe("tenant-2")
	defer cancelB()

	hub.Publish(&queue.Event{ID: "evt-1", TenantID: "tenant-1", Type: queue.EventNewMessage})

	select {
	case got := <-chA:
		if got.ID != "evt-1" {
			t.Errorf("evento = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("assinante do tenant-1 não recebeu o evento")
	}

	select {
	case got := <-chB:
		t.Fatalf("tenant-2 recebeu evento alheio: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())

	_, cancel := hub.Subscribe("tenant-1")
	if got := hub.Subscribers("tenant-1"); got != 1 {
		t.Fatalf("assinantes = %d", got)
	}

	cancel()
	cancel() // idempotente

	if got := hub.Subscribers("tenant-1"); got != 0 {
		t.Errorf("assinantes após cancelamento = %d", got)
	}

	// Publicar sem assinantes não pode travar nem entrar em pânico.
	hub.Publish(&queue.Event{ID: "evt-1", TenantID: "tenant-1"})
}

func TestHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(zap.NewNop())

	_, cancel := hub.Subscribe("tenant-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(&queue.Event{ID: "evt", TenantID: "tenant-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish bloqueou com assinante lento")
	}
}
