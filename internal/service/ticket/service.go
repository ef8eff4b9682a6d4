// Package ticket expõe as consultas e transições manuais de tickets
// usadas pela API de atendimento.
package ticket

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

var ErrInvalidStatus = errors.New("status de ticket inválido")

type Service struct {
	tickets  storage.TicketRepository
	messages storage.TicketMessageRepository
	contacts storage.ContactRepository
	log      *zap.Logger
}

func NewService(tickets storage.TicketRepository, messages storage.TicketMessageRepository, contacts storage.ContactRepository, log *zap.Logger) *Service {
	return &Service{tickets: tickets, messages: messages, contacts: contacts, log: log}
}

func (s *Service) List(ctx context.Context, tenantID string, statuses []model.TicketStatus) ([]model.Ticket, error) {
	return s.tickets.ListByTenant(ctx, tenantID, statuses)
}

// TicketDetail agrega o ticket, o contato e as mensagens da conversa.
type TicketDetail struct {
	Ticket   model.Ticket          `json:"ticket"`
	Contact  model.Contact         `json:"contact"`
	Messages []model.TicketMessage `json:"messages"`
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return TicketDetail{}, err
	}
	if ticket.TenantID != tenantID {
		return TicketDetail{}, storage.ErrNotFound
	}

	contact, err := s.contacts.GetByID(ctx, ticket.ContactID)
	if err != nil {
		return TicketDetail{}, err
	}

	messages, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return TicketDetail{}, err
	}

	return TicketDetail{Ticket: ticket, Contact: contact, Messages: messages}, nil
}

// UpdateStatus aplica uma transição manual do operador (pausar,
// resolver, fechar). As transições automáticas pertencem à triagem e
// ao vínculo com processos.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id string, status model.TicketStatus) error {
	switch status {
	case model.TicketStatusOpen, model.TicketStatusInProgress, model.TicketStatusWaiting,
		model.TicketStatusResolved, model.TicketStatusClosed:
	default:
		return ErrInvalidStatus
	}

	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ticket.TenantID != tenantID {
		return storage.ErrNotFound
	}

	if err := s.tickets.UpdateStatus(ctx, id, status); err != nil {
		return err
	}

	s.log.Info("status do ticket atualizado",
		zap.String("ticket_id", id),
		zap.String("status", string(status)))
	return nil
}
