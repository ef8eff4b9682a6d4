package push

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/pkg/queue"
	"github.com/jurisdesk/atendimento/internal/push/delivery"
	"github.com/jurisdesk/atendimento/internal/storage"
)

// Pool consome a fila de eventos e os entrega: sempre ao hub SSE do
// tenant, e ao webhook da conexão quando configurado.
type Pool struct {
	queue    queue.Queue
	connRepo storage.ConnectionRepository
	hub      *Hub
	delivery *delivery.Delivery
	log      *zap.Logger

	numWorkers int
	taskChan   chan *queue.Event
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewPool(q queue.Queue, connRepo storage.ConnectionRepository, hub *Hub, del *delivery.Delivery, log *zap.Logger, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Pool{
		queue:      q,
		connRepo:   connRepo,
		hub:        hub,
		delivery:   del,
		log:        log,
		numWorkers: numWorkers,
		taskChan:   make(chan *queue.Event, numWorkers*2),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.log.Info("push pool: iniciando", zap.Int("workers", p.numWorkers))

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.wg.Add(1)
	go p.runDispatcher()
}

func (p *Pool) Stop() {
	p.log.Info("push pool: encerrando")
	p.cancel()
	p.wg.Wait()
	close(p.taskChan)
	p.log.Info("push pool: encerrada")
}

func (p *Pool) runDispatcher() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			event, err := p.queue.Dequeue(p.ctx, 1*time.Second)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.log.Error("push pool: erro ao desenfileirar", zap.Error(err))
				continue
			}
			if event == nil {
				continue
			}

			select {
			case p.taskChan <- event:
			case <-p.ctx.Done():
				return
			case <-time.After(5 * time.Second):
				p.log.Warn("push pool: taskChan cheio, descartando evento", zap.String("event_id", event.ID))
			}
		}
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case event := <-p.taskChan:
			if event == nil {
				return
			}
			p.processEvent(p.ctx, id, event)
		}
	}
}

func (p *Pool) processEvent(ctx context.Context, workerID int, event *queue.Event) {
	p.hub.Publish(event)

	conn, err := p.connRepo.GetByID(ctx, event.ConnectionID)
	if err != nil {
		p.log.Warn("push pool: conexão do evento não encontrada",
			zap.Int("worker_id", workerID),
			zap.String("event_id", event.ID),
			zap.String("connection_id", event.ConnectionID),
			zap.Error(err))
		return
	}

	if conn.WebhookURL == "" {
		return
	}

	payload := map[string]interface{}{
		"id":           event.ID,
		"tenantId":     event.TenantID,
		"connectionId": event.ConnectionID,
		"type":         event.Type,
		"payload":      event.Payload,
		"createdAt":    event.CreatedAt,
	}

	if err := p.delivery.Deliver(ctx, conn.WebhookURL, conn.WebhookSecret, payload); err != nil {
		p.log.Error("push pool: falha na entrega do webhook",
			zap.Int("worker_id", workerID),
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}

	p.log.Debug("push pool: evento entregue",
		zap.Int("worker_id", workerID),
		zap.String("event_id", event.ID))
}
