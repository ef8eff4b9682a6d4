// Package triage transforma mensagens recebidas em trabalho de
// atendimento: resolve o contato, encontra ou abre o ticket, registra
// a mensagem e decide entre notificar um atendente ou devolver ao
// fluxo automático.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/inbound"
	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

// Action é o desfecho da triagem de uma mensagem.
type Action string

const (
	// ActionNotifyAgent indica remetente conhecido: a mensagem foi
	// registrada em um ticket e um atendente deve ser avisado.
	ActionNotifyAgent Action = "NOTIFY_AGENT"
	// ActionAIHandoff indica que a conversa segue com o respondedor
	// automático, sem atendente e sem persistência.
	ActionAIHandoff Action = "AI_HANDOFF"
)

// HandoffContext qualifica um AI_HANDOFF.
type HandoffContext string

// ContextNewLead marca remetente sem cadastro: possível cliente novo.
const ContextNewLead HandoffContext = "NEW_LEAD"

const (
	// onboardingReply é a resposta sugerida para remetentes sem
	// cadastro. Cadastro de contato é um fluxo explícito do
	// escritório, nunca um efeito colateral de mensagem recebida.
	onboardingReply = "Olá! Aqui é o atendimento do escritório. Para agilizar, me informe seu nome completo e o assunto que deseja tratar."

	suggestionDefault = "Saudação Padrão"

	// suggestionMaxTopic limita o tamanho do assunto anterior citado
	// na sugestão ao atendente.
	suggestionMaxTopic = 120
)

// Result é o desfecho de handleIncomingMessage, repassado ao canal de
// push da interface.
type Result struct {
	Action     Action         `json:"action"`
	Context    HandoffContext `json:"context,omitempty"`
	Reply      string         `json:"reply,omitempty"`
	LogID      string         `json:"logId,omitempty"`
	TicketID   string         `json:"ticketId,omitempty"`
	Contact    string         `json:"contact,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// Publisher recebe o desfecho de cada triagem para repasse à
// interface (push em tempo real, webhooks).
type Publisher interface {
	TriageResult(conn model.Connection, msg inbound.Message, result Result)
}

type Engine struct {
	contacts  storage.ContactRepository
	tickets   storage.TicketRepository
	messages  storage.TicketMessageRepository
	processes storage.ProcessRepository
	publisher Publisher
	log       *zap.Logger
}

func NewEngine(contacts storage.ContactRepository, tickets storage.TicketRepository, messages storage.TicketMessageRepository, processes storage.ProcessRepository, log *zap.Logger) *Engine {
	return &Engine{
		contacts:  contacts,
		tickets:   tickets,
		messages:  messages,
		processes: processes,
		log:       log,
	}
}

// SetPublisher registra o destino dos desfechos de triagem.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// HandleIncomingMessage implementa inbound.Handler: executa a triagem
// e publica o desfecho.
func (e *Engine) HandleIncomingMessage(ctx context.Context, conn model.Connection, msg inbound.Message) error {
	result, err := e.Triage(ctx, conn, msg)
	if err != nil {
		return err
	}

	e.log.Info("mensagem triada",
		zap.String("connection_id", conn.ID),
		zap.String("tenant_id", conn.TenantID),
		zap.String("action", string(result.Action)),
		zap.String("ticket_id", result.TicketID))

	if e.publisher != nil {
		e.publisher.TriageResult(conn, msg, result)
	}
	return nil
}

// Triage executa o fluxo central de atendimento para uma mensagem
// recebida. Remetente desconhecido resulta em AI_HANDOFF sem nenhuma
// escrita; remetente conhecido resulta em NOTIFY_AGENT com a mensagem
// registrada no ticket ativo (ou em um recém-aberto).
func (e *Engine) Triage(ctx context.Context, conn model.Connection, msg inbound.Message) (Result, error) {
	contact, err := e.contacts.GetByPhone(ctx, conn.TenantID, msg.Phone)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{
			Action:  ActionAIHandoff,
			Context: ContextNewLead,
			Reply:   onboardingReply,
		}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("erro ao resolver contato: %w", err)
	}

	ticket, err := e.findOrOpenTicket(ctx, conn, contact)
	if err != nil {
		return Result{}, err
	}

	created, err := e.messages.Create(ctx, model.TicketMessage{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		SenderType:  model.SenderContact,
		SenderID:    contact.ID,
		Content:     msg.Content,
		ContentType: contentTypeFor(msg),
		MediaURL:    msg.MediaURL,
		CreatedAt:   msg.ReceivedAt,
	})
	if err != nil {
		return Result{}, fmt.Errorf("erro ao registrar mensagem no ticket: %w", err)
	}

	suggestion, err := e.contextHint(ctx, ticket.ID, created.ID)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Action:     ActionNotifyAgent,
		LogID:      created.ID,
		TicketID:   ticket.ID,
		Contact:    contact.Name,
		Suggestion: suggestion,
	}, nil
}

// findOrOpenTicket reutiliza o ticket ativo mais recente do contato ou
// abre um novo. Ticket em waiting volta para in_progress: o contato
// respondeu, a conversa reativou.
func (e *Engine) findOrOpenTicket(ctx context.Context, conn model.Connection, contact model.Contact) (model.Ticket, error) {
	ticket, err := e.tickets.GetActiveByContact(ctx, conn.TenantID, contact.ID)
	if errors.Is(err, storage.ErrNotFound) {
		opened, err := e.tickets.Create(ctx, model.Ticket{
			ID:           uuid.NewString(),
			TenantID:     conn.TenantID,
			ContactID:    contact.ID,
			ConnectionID: conn.ID,
			Status:       model.TicketStatusOpen,
			Priority:     model.TicketPriorityMedium,
			Channel:      conn.Channel,
		})
		if err != nil {
			return model.Ticket{}, fmt.Errorf("erro ao abrir ticket: %w", err)
		}
		e.log.Info("ticket aberto pela triagem",
			zap.String("ticket_id", opened.ID),
			zap.String("contact_id", contact.ID),
			zap.String("tenant_id", conn.TenantID))
		return opened, nil
	}
	if err != nil {
		return model.Ticket{}, fmt.Errorf("erro ao buscar ticket ativo: %w", err)
	}

	if ticket.Status == model.TicketStatusWaiting {
		if err := e.tickets.UpdateStatus(ctx, ticket.ID, model.TicketStatusInProgress); err != nil {
			return model.Ticket{}, fmt.Errorf("erro ao reativar ticket: %w", err)
		}
		ticket.Status = model.TicketStatusInProgress
	}
	return ticket, nil
}

// contextHint monta a dica de um atendente sobre o histórico do
// contato, a partir da última mensagem dele anterior à atual.
func (e *Engine) contextHint(ctx context.Context, ticketID, currentMessageID string) (string, error) {
	prev, err := e.messages.LastContactMessage(ctx, ticketID, currentMessageID)
	if errors.Is(err, storage.ErrNotFound) {
		return suggestionDefault, nil
	}
	if err != nil {
		return "", fmt.Errorf("erro ao buscar histórico do ticket: %w", err)
	}

	topic := prev.Content
	if topic == "" && prev.MediaURL != "" {
		topic = "arquivo enviado"
	}
	if len(topic) > suggestionMaxTopic {
		topic = topic[:suggestionMaxTopic] + "…"
	}
	return "Cliente recorrente, último assunto: " + topic, nil
}

// LinkToProcess vincula uma mensagem de ticket à linha do tempo de um
// processo: cria a entrada, marca a mensagem como lida e avança o
// ticket para in_progress, tudo em uma única transação.
func (e *Engine) LinkToProcess(ctx context.Context, tenantID, messageID, processID string) (model.TimelineEntry, error) {
	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		return model.TimelineEntry{}, err
	}

	ticket, err := e.tickets.GetByID(ctx, msg.TicketID)
	if err != nil {
		return model.TimelineEntry{}, err
	}
	if ticket.TenantID != tenantID {
		return model.TimelineEntry{}, storage.ErrNotFound
	}

	process, err := e.processes.GetByID(ctx, processID)
	if err != nil {
		return model.TimelineEntry{}, err
	}
	if process.TenantID != tenantID {
		return model.TimelineEntry{}, storage.ErrNotFound
	}

	entryType := model.TimelineEntryMessage
	if msg.MediaURL != "" {
		entryType = model.TimelineEntryFile
	}

	entry, err := e.processes.LinkMessage(ctx, model.TimelineEntry{
		ID:          uuid.NewString(),
		ProcessID:   process.ID,
		Type:        entryType,
		Description: msg.Content,
		Metadata: model.TimelineMetadata{
			OriginalMessageID: msg.ID,
			TicketID:          msg.TicketID,
			Source:            string(ticket.Channel),
			MediaURL:          msg.MediaURL,
		},
		CreatedAt: time.Now(),
	}, msg.ID, msg.TicketID)
	if err != nil {
		return model.TimelineEntry{}, fmt.Errorf("erro ao vincular mensagem ao processo: %w", err)
	}

	e.log.Info("mensagem vinculada ao processo",
		zap.String("message_id", msg.ID),
		zap.String("process_id", process.ID),
		zap.String("ticket_id", msg.TicketID),
		zap.String("entry_type", string(entryType)))

	return entry, nil
}

func contentTypeFor(msg inbound.Message) model.ContentType {
	if msg.MediaURL != "" {
		return model.ContentFile
	}
	return model.ContentText
}
