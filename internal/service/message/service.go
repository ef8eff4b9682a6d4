// Package message implementa o despacho de mensagens de saída. O
// envio só acontece através do socket vivo mantido pelo gerenciador de
// sessão; conexão fora de connected é rejeitada na hora.
package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/session"
	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

var ErrInvalidPayload = errors.New("payload inválido")

// SessionManager é a superfície do gerenciador de sessão usada pelo
// despacho: obter o cliente vivo de uma conexão.
type SessionManager interface {
	Client(connectionID string) (session.Client, error)
}

type Service struct {
	sessionMgr  SessionManager
	ticketRepo  storage.TicketRepository
	contactRepo storage.ContactRepository
	messageRepo storage.TicketMessageRepository
	log         *zap.Logger
}

func NewService(sessionMgr SessionManager, ticketRepo storage.TicketRepository, contactRepo storage.ContactRepository, messageRepo storage.TicketMessageRepository, log *zap.Logger) *Service {
	return &Service{
		sessionMgr:  sessionMgr,
		ticketRepo:  ticketRepo,
		contactRepo: contactRepo,
		messageRepo: messageRepo,
		log:         log,
	}
}

type SendTextInput struct {
	ConnectionID string
	To           string
	Text         string
}

// SendText envia texto pelo socket da conexão. Retorna o id atribuído
// pelo servidor assim que o protocolo confirma a submissão; entrega é
// assíncrona e não é modelada aqui. Sem retry: falha volta ao chamador
// para reenvio manual.
func (s *Service) SendText(ctx context.Context, input SendTextInput) (string, error) {
	if input.ConnectionID == "" || input.To == "" || input.Text == "" {
		return "", ErrInvalidPayload
	}

	client, err := s.sessionMgr.Client(input.ConnectionID)
	if err != nil {
		return "", err
	}

	serverID, err := client.SendText(ctx, input.To, input.Text)
	if err != nil {
		s.log.Warn("falha no envio da mensagem",
			zap.String("connection_id", input.ConnectionID),
			zap.String("to", input.To),
			zap.Error(err))
		return "", fmt.Errorf("erro ao enviar mensagem: %w", err)
	}

	s.log.Info("mensagem enviada",
		zap.String("connection_id", input.ConnectionID),
		zap.String("to", input.To),
		zap.String("server_id", serverID))

	return serverID, nil
}

type ReplyTicketInput struct {
	TenantID string
	TicketID string
	UserID   string
	Text     string
}

// ReplyTicket envia a resposta de um atendente dentro de um ticket e
// registra a mensagem com senderType=user. O envio precede o registro:
// um ticket nunca mostra como enviada uma resposta que o protocolo
// rejeitou.
func (s *Service) ReplyTicket(ctx context.Context, input ReplyTicketInput) (model.TicketMessage, error) {
	if input.TicketID == "" || input.Text == "" {
		return model.TicketMessage{}, ErrInvalidPayload
	}

	ticket, err := s.ticketRepo.GetByID(ctx, input.TicketID)
	if err != nil {
		return model.TicketMessage{}, err
	}
	if ticket.TenantID != input.TenantID {
		return model.TicketMessage{}, storage.ErrNotFound
	}

	contact, err := s.contactRepo.GetByID(ctx, ticket.ContactID)
	if err != nil {
		return model.TicketMessage{}, fmt.Errorf("erro ao resolver contato do ticket: %w", err)
	}

	if _, err := s.SendText(ctx, SendTextInput{
		ConnectionID: ticket.ConnectionID,
		To:           contact.Phone,
		Text:         input.Text,
	}); err != nil {
		return model.TicketMessage{}, err
	}

	recorded, err := s.messageRepo.Create(ctx, model.TicketMessage{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		SenderType:  model.SenderUser,
		SenderID:    input.UserID,
		Content:     input.Text,
		ContentType: model.ContentText,
	})
	if err != nil {
		// Enviado mas não registrado: o chamador precisa saber que o
		// histórico ficou incompleto.
		return model.TicketMessage{}, fmt.Errorf("mensagem enviada mas não registrada no ticket: %w", err)
	}
	return recorded, nil
}
