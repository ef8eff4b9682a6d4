package inbound

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/session"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type recordingHandler struct {
	mu       sync.Mutex
	byConn   map[string][]string
	delay    time.Duration
	received chan struct{}
}

func newRecordingHandler(delay time.Duration) *recordingHandler {
	return &recordingHandler{
		byConn:   make(map[string][]string),
		delay:    delay,
		received: make(chan struct{}, 1024),
	}
}

func (h *recordingHandler) HandleIncomingMessage(ctx context.Context, conn model.Connection, msg Message) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.byConn[conn.ID] = append(h.byConn[conn.ID], msg.MessageID)
	h.mu.Unlock()
	h.received <- struct{}{}
	return nil
}

func (h *recordingHandler) messages(connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.byConn[connID]))
	copy(out, h.byConn[connID])
	return out
}

func enabledConn(id string) model.Connection {
	return model.Connection{ID: id, TenantID: "tenant-1", Enabled: true}
}

func waitReceived(t *testing.T, h *recordingHandler, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.received:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout esperando mensagem %d de %d", i+1, n)
		}
	}
}

func TestMessagesKeepArrivalOrderPerConnection(t *testing.T) {
	handler := newRecordingHandler(time.Millisecond)
	router := NewRouter(handler, zap.NewNop())
	defer router.Close()

	conn := enabledConn("conn-1")
	const total = 50
	for i := 0; i < total; i++ {
		router.HandleMessage(context.Background(), conn, session.MessageReceived{
			MessageID: fmt.Sprintf("msg-%03d", i),
			Phone:     "5511999990000",
			Content:   "olá",
		})
	}

	waitReceived(t, handler, total)

	got := handler.messages("conn-1")
	for i, id := range got {
		want := fmt.Sprintf("msg-%03d", i)
		if id != want {
			t.Fatalf("posição %d: %s, esperava %s", i, id, want)
		}
	}
}

func TestConnectionsRunIndependently(t *testing.T) {
	handler := newRecordingHandler(0)
	router := NewRouter(handler, zap.NewNop())
	defer router.Close()

	for i := 0; i < 10; i++ {
		router.HandleMessage(context.Background(), enabledConn("conn-a"), session.MessageReceived{
			MessageID: fmt.Sprintf("a-%d", i), Phone: "5511999990000", Content: "oi",
		})
		router.HandleMessage(context.Background(), enabledConn("conn-b"), session.MessageReceived{
			MessageID: fmt.Sprintf("b-%d", i), Phone: "5511888880000", Content: "oi",
		})
	}

	waitReceived(t, handler, 20)

	if got := len(handler.messages("conn-a")); got != 10 {
		t.Errorf("conn-a recebeu %d mensagens, esperava 10", got)
	}
	if got := len(handler.messages("conn-b")); got != 10 {
		t.Errorf("conn-b recebeu %d mensagens, esperava 10", got)
	}
}

func TestDisabledConnectionIsDiscarded(t *testing.T) {
	handler := newRecordingHandler(0)
	router := NewRouter(handler, zap.NewNop())
	defer router.Close()

	conn := enabledConn("conn-1")
	conn.Enabled = false
	router.HandleMessage(context.Background(), conn, session.MessageReceived{
		MessageID: "msg-1", Phone: "5511999990000", Content: "oi",
	})

	select {
	case <-handler.received:
		t.Fatal("mensagem de conexão desabilitada não deveria chegar à triagem")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleAfterCloseIsDiscarded(t *testing.T) {
	handler := newRecordingHandler(0)
	router := NewRouter(handler, zap.NewNop())
	router.Close()

	router.HandleMessage(context.Background(), enabledConn("conn-1"), session.MessageReceived{
		MessageID: "msg-1", Phone: "5511999990000", Content: "oi",
	})

	select {
	case <-handler.received:
		t.Fatal("mensagem após Close não deveria ser processada")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMissingReceivedAtGetsFilled(t *testing.T) {
	got := make(chan Message, 1)
	router := NewRouter(handlerFunc(func(ctx context.Context, conn model.Connection, msg Message) error {
		got <- msg
		return nil
	}), zap.NewNop())
	defer router.Close()

	router.HandleMessage(context.Background(), enabledConn("conn-1"), session.MessageReceived{
		MessageID: "msg-1", Phone: "5511999990000", Content: "oi",
	})

	select {
	case msg := <-got:
		if msg.ReceivedAt.IsZero() {
			t.Error("ReceivedAt deveria ser preenchido quando ausente")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout esperando mensagem")
	}
}

type handlerFunc func(ctx context.Context, conn model.Connection, msg Message) error

func (f handlerFunc) HandleIncomingMessage(ctx context.Context, conn model.Connection, msg Message) error {
	return f(ctx, conn, msg)
}
