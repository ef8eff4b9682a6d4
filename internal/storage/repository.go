package storage

import (
	"context"
	"errors"

	"github.com/jurisdesk/atendimento/internal/storage/model"
)

var ErrNotFound = errors.New("not found")

type ConnectionRepository interface {
	Create(ctx context.Context, conn model.Connection) (model.Connection, error)
	GetByID(ctx context.Context, id string) (model.Connection, error)
	List(ctx context.Context) ([]model.Connection, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.Connection, error)
	Update(ctx context.Context, conn model.Connection) (model.Connection, error)
	UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus, qrCode string) error
	Disable(ctx context.Context, id string) error
}

type ContactRepository interface {
	Create(ctx context.Context, contact model.Contact) (model.Contact, error)
	GetByID(ctx context.Context, id string) (model.Contact, error)
	GetByPhone(ctx context.Context, tenantID, phone string) (model.Contact, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.Contact, error)
	Update(ctx context.Context, contact model.Contact) (model.Contact, error)
}

type TicketRepository interface {
	Create(ctx context.Context, ticket model.Ticket) (model.Ticket, error)
	GetByID(ctx context.Context, id string) (model.Ticket, error)
	// GetActiveByContact devolve o ticket ativo mais recente do contato
	// (status open, in_progress ou waiting) ou ErrNotFound.
	GetActiveByContact(ctx context.Context, tenantID, contactID string) (model.Ticket, error)
	ListByTenant(ctx context.Context, tenantID string, statuses []model.TicketStatus) ([]model.Ticket, error)
	UpdateStatus(ctx context.Context, id string, status model.TicketStatus) error
}

type TicketMessageRepository interface {
	Create(ctx context.Context, msg model.TicketMessage) (model.TicketMessage, error)
	GetByID(ctx context.Context, id string) (model.TicketMessage, error)
	ListByTicket(ctx context.Context, ticketID string) ([]model.TicketMessage, error)
	// LastContactMessage devolve a última mensagem do ticket com
	// senderType=contact criada antes da mensagem beforeID, ou ErrNotFound.
	LastContactMessage(ctx context.Context, ticketID, beforeID string) (model.TicketMessage, error)
	CountByTicket(ctx context.Context, ticketID string) (int64, error)
}

type ProcessRepository interface {
	GetByID(ctx context.Context, id string) (model.LegalProcess, error)
	ListTimeline(ctx context.Context, processID string) ([]model.TimelineEntry, error)
	// LinkMessage cria a entrada de linha do tempo, marca ReadAt da
	// mensagem e avança o ticket para in_progress em uma única
	// transação: ou os três efeitos acontecem, ou nenhum.
	LinkMessage(ctx context.Context, entry model.TimelineEntry, messageID, ticketID string) (model.TimelineEntry, error)
}
