package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jurisdesk/atendimento/internal/pkg/queue"
)

func TestEnqueueDequeue(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	ctx := context.Background()
	in := queue.Event{ID: "ev-1", TenantID: "t-1", Type: queue.EventNewMessage}

	if err := q.Enqueue(ctx, in); err != nil {
		t.Fatal(err)
	}

	out, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || out.ID != "ev-1" || out.Type != queue.EventNewMessage {
		t.Fatalf("dequeue = %+v, want ev-1", out)
	}
}

func TestDequeueTimeout(t *testing.T) {
	q := NewQueue(1)
	defer q.Close()

	out, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("esperado nil no timeout, veio %+v", out)
	}
}

func TestEnqueueFull(t *testing.T) {
	q := NewQueue(1)
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, queue.Event{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, queue.Event{ID: "b"}); err == nil {
		t.Fatal("esperado erro com fila cheia")
	}
}

func TestEnqueueClosed(t *testing.T) {
	q := NewQueue(1)
	q.Close()

	if err := q.Enqueue(context.Background(), queue.Event{ID: "a"}); err == nil {
		t.Fatal("esperado erro com fila fechada")
	}
}
