// Package inbound roteia mensagens recebidas das conexões para a
// triagem, preservando a ordem de chegada por conexão.
package inbound

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/session"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

// Message é a forma normalizada de uma mensagem recebida, já
// independente do canal de origem.
type Message struct {
	MessageID  string
	Phone      string
	PushName   string
	Content    string
	MediaURL   string
	ReceivedAt time.Time
}

// Handler consome mensagens normalizadas, uma por vez por conexão.
type Handler interface {
	HandleIncomingMessage(ctx context.Context, conn model.Connection, msg Message) error
}

const queueBuffer = 256

type job struct {
	conn model.Connection
	msg  Message
}

// Router implementa session.MessageHandler. Cada conexão tem uma fila
// própria com um worker dedicado: mensagens da mesma conexão nunca se
// atropelam, conexões distintas seguem em paralelo.
type Router struct {
	handler Handler
	log     *zap.Logger

	mu     sync.Mutex
	queues map[string]chan job
	wg     sync.WaitGroup
	closed bool
}

func NewRouter(handler Handler, log *zap.Logger) *Router {
	return &Router{
		handler: handler,
		log:     log,
		queues:  make(map[string]chan job),
	}
}

// HandleMessage enfileira a mensagem na fila da conexão. Não bloqueia
// o loop de sessão: fila cheia descarta a mensagem com log de erro.
func (r *Router) HandleMessage(ctx context.Context, conn model.Connection, msg session.MessageReceived) {
	if !conn.Enabled {
		r.log.Warn("mensagem descartada: conexão desabilitada",
			zap.String("connection_id", conn.ID),
			zap.String("message_id", msg.MessageID))
		return
	}

	normalized := Message{
		MessageID:  msg.MessageID,
		Phone:      msg.Phone,
		PushName:   msg.PushName,
		Content:    msg.Content,
		MediaURL:   msg.MediaURL,
		ReceivedAt: msg.ReceivedAt,
	}
	if normalized.ReceivedAt.IsZero() {
		normalized.ReceivedAt = time.Now()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn("mensagem descartada: roteador encerrado",
			zap.String("connection_id", conn.ID),
			zap.String("message_id", msg.MessageID))
		return
	}
	queue, ok := r.queues[conn.ID]
	if !ok {
		queue = make(chan job, queueBuffer)
		r.queues[conn.ID] = queue
		r.wg.Add(1)
		go r.worker(conn.ID, queue)
	}
	r.mu.Unlock()

	select {
	case queue <- job{conn: conn, msg: normalized}:
	default:
		r.log.Error("fila de entrada cheia, mensagem descartada",
			zap.String("connection_id", conn.ID),
			zap.String("message_id", msg.MessageID))
	}
}

func (r *Router) worker(connectionID string, queue chan job) {
	defer r.wg.Done()

	for j := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := r.handler.HandleIncomingMessage(ctx, j.conn, j.msg); err != nil {
			r.log.Error("erro ao processar mensagem recebida",
				zap.String("connection_id", connectionID),
				zap.String("message_id", j.msg.MessageID),
				zap.String("phone", j.msg.Phone),
				zap.Error(err))
		}
		cancel()
	}
}

// Close drena as filas e espera os workers terminarem.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, queue := range r.queues {
		close(queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
}
