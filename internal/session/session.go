package session

import (
	"context"
	"errors"
	"time"

	"github.com/jurisdesk/atendimento/internal/storage/model"
)

var (
	ErrConnectionNotReady = errors.New("conexão não está conectada")
	ErrAlreadyStarted     = errors.New("sessão já iniciada para esta conexão")
	ErrSessionNotFound    = errors.New("sessão não encontrada")
	ErrPairingExpired     = errors.New("janela de pareamento expirou")
	ErrLockNotAcquired    = errors.New("conexão já possui socket ativo em outra instância")
)

// CloseClass classifica o motivo do fechamento de um socket.
// Fechamentos recuperáveis disparam reconexão com backoff; terminais
// limpam as credenciais e exigem novo pareamento pelo operador.
type CloseClass int

const (
	CloseRecoverable CloseClass = iota
	CloseTerminal
)

// Event é um evento emitido pela camada de protocolo para o
// gerenciador. Registros etiquetados em vez de payloads soltos.
type Event interface {
	sessionEvent()
}

// PairingCode é o desafio de pareamento (QR) emitido pelo protocolo.
type PairingCode struct {
	Code    string
	Timeout time.Duration
}

// Paired indica pareamento concluído; Credentials é o blob opaco a
// persistir e JID o identificador da conta vinculada.
type Paired struct {
	JID         string
	Credentials []byte
}

// CredentialsRotated é emitido quando o protocolo reescreve parte das
// credenciais durante a sessão.
type CredentialsRotated struct {
	Credentials []byte
}

// Connected indica socket autenticado e pronto.
type Connected struct{}

// Closed indica socket fechado, com classificação do motivo.
type Closed struct {
	Class  CloseClass
	Reason string
}

// MessageReceived é uma mensagem recebida pela conexão.
type MessageReceived struct {
	MessageID  string
	Phone      string
	PushName   string
	Content    string
	MediaURL   string
	ReceivedAt time.Time
}

func (PairingCode) sessionEvent()        {}
func (Paired) sessionEvent()             {}
func (CredentialsRotated) sessionEvent() {}
func (Connected) sessionEvent()          {}
func (Closed) sessionEvent()             {}
func (MessageReceived) sessionEvent()    {}

// Client é a superfície mínima exigida da biblioteca de protocolo
// para uma sessão aberta.
type Client interface {
	// SendText envia texto e retorna o id atribuído pelo servidor.
	// Retorna quando o protocolo confirma a submissão, não a entrega.
	SendText(ctx context.Context, to, text string) (string, error)
	IsLoggedIn() bool
	Disconnect()
	Logout(ctx context.Context) error
}

// Dialer abre uma sessão de protocolo para uma conexão. creds é nil
// quando não há credenciais armazenadas, forçando fluxo de pareamento.
// Eventos devem ser entregues ao sink na ordem de chegada.
type Dialer interface {
	Dial(ctx context.Context, conn model.Connection, creds []byte, sink func(Event)) (Client, error)
}

// CredentialStore persiste o blob de credenciais por conexão.
// Load retorna (nil, nil) quando não há credenciais ou quando o blob
// está corrompido: ambos forçam novo pareamento, nunca um crash.
type CredentialStore interface {
	Load(ctx context.Context, connectionID string) ([]byte, error)
	Save(ctx context.Context, connectionID string, creds []byte) error
	Clear(ctx context.Context, connectionID string) error
}

// Notifier recebe cada transição de estado e cada desafio de
// pareamento para repasse ao canal de push da interface.
type Notifier interface {
	ConnectionStatus(conn model.Connection, status model.ConnectionStatus)
	PairingCode(conn model.Connection, code string)
}

// MessageHandler recebe mensagens normalizadas da conexão.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn model.Connection, msg MessageReceived)
}

// Locker serializa a posse de uma conexão entre instâncias do backend.
// TryLock retorna ErrLockNotAcquired se outra instância detém o lock.
type Locker interface {
	TryLock(ctx context.Context, connectionID string) (release func(), err error)
}
