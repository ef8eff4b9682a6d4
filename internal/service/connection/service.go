// Package connection gerencia o cadastro das conexões de canal de um
// tenant e orquestra as ações de ciclo de vida sobre o gerenciador de
// sessão (iniciar, resetar, desabilitar).
package connection

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

var (
	ErrInvalidName    = errors.New("nome da conexão inválido")
	ErrInvalidWebhook = errors.New("webhook inválido")
	ErrDisabled       = errors.New("conexão desabilitada")
)

// SessionManager é a superfície do gerenciador de sessão usada pelo
// cadastro de conexões.
type SessionManager interface {
	Start(ctx context.Context, conn model.Connection) error
	Reset(ctx context.Context, connectionID string) error
	Stop(ctx context.Context, connectionID string) error
	Status(connectionID string) model.ConnectionStatus
	QRCode(connectionID string) string
}

type Service struct {
	repo    storage.ConnectionRepository
	session SessionManager
	log     *zap.Logger
}

func NewService(repo storage.ConnectionRepository, session SessionManager, log *zap.Logger) *Service {
	return &Service{repo: repo, session: session, log: log}
}

type CreateInput struct {
	TenantID      string
	Name          string
	WebhookURL    string
	WebhookSecret string
}

func (s *Service) Create(ctx context.Context, input CreateInput) (model.Connection, error) {
	if strings.TrimSpace(input.Name) == "" {
		return model.Connection{}, ErrInvalidName
	}
	webhookURL := strings.TrimSpace(input.WebhookURL)
	if webhookURL != "" && !strings.HasPrefix(webhookURL, "http") {
		return model.Connection{}, ErrInvalidWebhook
	}

	conn := model.Connection{
		ID:            uuid.NewString(),
		TenantID:      input.TenantID,
		Name:          strings.TrimSpace(input.Name),
		Channel:       model.ChannelWhatsApp,
		Status:        model.ConnectionStatusDisconnected,
		WebhookURL:    webhookURL,
		WebhookSecret: strings.TrimSpace(input.WebhookSecret),
		Enabled:       true,
	}
	created, err := s.repo.Create(ctx, conn)
	if err != nil {
		return model.Connection{}, err
	}

	s.log.Info("conexão criada",
		zap.String("connection_id", created.ID),
		zap.String("tenant_id", created.TenantID))
	return created, nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]model.Connection, error) {
	conns, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	// O status persistido pode estar defasado em relação ao socket
	// vivo; a visão da API reflete o gerenciador.
	for i := range conns {
		conns[i].Status = s.session.Status(conns[i].ID)
	}
	return conns, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (model.Connection, error) {
	conn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Connection{}, err
	}
	if conn.TenantID != tenantID {
		return model.Connection{}, storage.ErrNotFound
	}
	conn.Status = s.session.Status(conn.ID)
	return conn, nil
}

type UpdateInput struct {
	Name          string
	WebhookURL    string
	WebhookSecret string
}

func (s *Service) Update(ctx context.Context, tenantID, id string, input UpdateInput) (model.Connection, error) {
	conn, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return model.Connection{}, err
	}

	if strings.TrimSpace(input.Name) != "" {
		conn.Name = strings.TrimSpace(input.Name)
	}
	webhookURL := strings.TrimSpace(input.WebhookURL)
	if webhookURL != "" && !strings.HasPrefix(webhookURL, "http") {
		return model.Connection{}, ErrInvalidWebhook
	}
	conn.WebhookURL = webhookURL
	if strings.TrimSpace(input.WebhookSecret) != "" {
		conn.WebhookSecret = strings.TrimSpace(input.WebhookSecret)
	}

	return s.repo.Update(ctx, conn)
}

// Start inicia o pareamento ou a reconexão da conexão.
func (s *Service) Start(ctx context.Context, tenantID, id string) (model.Connection, error) {
	conn, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return model.Connection{}, err
	}
	if !conn.Enabled {
		return model.Connection{}, ErrDisabled
	}

	if err := s.session.Start(ctx, conn); err != nil {
		return model.Connection{}, err
	}
	conn.Status = s.session.Status(conn.ID)
	return conn, nil
}

// Reset derruba o socket, limpa credenciais e exige novo pareamento.
func (s *Service) Reset(ctx context.Context, tenantID, id string) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	return s.session.Reset(ctx, id)
}

// Stop encerra a sessão preservando credenciais.
func (s *Service) Stop(ctx context.Context, tenantID, id string) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	return s.session.Stop(ctx, id)
}

// Disable encerra a sessão e marca a conexão como desabilitada.
// Conexões nunca são apagadas enquanto houver tickets que as
// referenciam.
func (s *Service) Disable(ctx context.Context, tenantID, id string) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	// Sessão pode não estar ativa; o que importa é o socket não
	// sobreviver à desabilitação.
	_ = s.session.Stop(ctx, id)
	return s.repo.Disable(ctx, id)
}

// QRCode devolve o desafio de pareamento vigente.
func (s *Service) QRCode(ctx context.Context, tenantID, id string) (string, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return "", err
	}
	return s.session.QRCode(id), nil
}
