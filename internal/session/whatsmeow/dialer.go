// Package whatsmeow adapta a biblioteca WhatsMeow à interface de
// sessão do gerenciador de conexões. Eventos do protocolo são
// traduzidos para eventos de sessão; nada fora deste pacote importa
// WhatsMeow diretamente.
package whatsmeow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"           // driver PostgreSQL para sessões WhatsMeow
	_ "github.com/mattn/go-sqlite3" // driver SQLite para sessões WhatsMeow
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/jurisdesk/atendimento/internal/session"
	"github.com/jurisdesk/atendimento/internal/storage/media"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type noopLogger struct{}

func (n *noopLogger) Debugf(msg string, args ...interface{}) {}
func (n *noopLogger) Infof(msg string, args ...interface{})  {}
func (n *noopLogger) Warnf(msg string, args ...interface{})  {}
func (n *noopLogger) Errorf(msg string, args ...interface{}) {}
func (n *noopLogger) Sub(module string) waLog.Logger         { return n }

// storedSession é o conteúdo do blob de credenciais: aponta para o
// device persistido no sqlstore do WhatsMeow.
type storedSession struct {
	JID string `json:"jid"`
}

// Dialer abre sessões WhatsMeow. O material criptográfico do device
// vive no sqlstore da biblioteca (um arquivo SQLite por conexão, ou
// PostgreSQL compartilhado); o blob de credenciais guarda o JID que
// identifica o device dentro do store.
type Dialer struct {
	driver     string
	baseDir    string
	pgDSN      string
	media      *media.Storage
	apiBaseURL string
	log        *zap.Logger
}

func NewDialer(driver, baseDir, pgDSN string, mediaStorage *media.Storage, apiBaseURL string, log *zap.Logger) (*Dialer, error) {
	if driver != "postgres" {
		if baseDir == "" {
			baseDir = "/app/data/sessions"
			log.Warn("sessionDir não definido, usando diretório padrão do container", zap.String("dir", baseDir))
		}
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("whatsmeow: criar diretório de sessões: %w", err)
		}
	}
	return &Dialer{
		driver:     driver,
		baseDir:    baseDir,
		pgDSN:      pgDSN,
		media:      mediaStorage,
		apiBaseURL: apiBaseURL,
		log:        log,
	}, nil
}

func (d *Dialer) Dial(ctx context.Context, conn model.Connection, creds []byte, sink func(session.Event)) (session.Client, error) {
	pairing := len(creds) == 0

	container, err := d.openContainer(ctx, conn.ID, pairing)
	if err != nil {
		return nil, err
	}

	device, terminal, err := d.resolveDevice(ctx, container, conn, creds)
	if err != nil {
		return nil, err
	}

	cli := whatsmeow.NewClient(device, &noopLogger{})
	// A reconexão é responsabilidade do gerenciador de sessão, com o
	// backoff dele; a reconexão automática da biblioteca fica desligada.
	cli.EnableAutoReconnect = false
	cli.ManualHistorySyncDownload = true

	wrapped := &protocolClient{cli: cli}

	if terminal != "" {
		// O blob aponta para um device que o store não conhece mais.
		// Fechamento terminal: credenciais são limpas e o operador
		// refaz o pareamento.
		sink(session.Closed{Class: session.CloseTerminal, Reason: terminal})
		return wrapped, nil
	}

	cli.AddEventHandler(func(evt any) {
		d.handleEvent(conn, cli, sink, evt)
	})

	if pairing {
		qrChan, err := cli.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("whatsmeow: obter canal QR: %w", err)
		}
		go func() {
			for item := range qrChan {
				if item.Event == "code" && item.Code != "" {
					sink(session.PairingCode{Code: item.Code, Timeout: item.Timeout})
				}
			}
		}()
	}

	if err := cli.Connect(); err != nil {
		return nil, fmt.Errorf("whatsmeow: conectar: %w", err)
	}

	return wrapped, nil
}

func (d *Dialer) openContainer(ctx context.Context, connectionID string, pairing bool) (*sqlstore.Container, error) {
	if d.driver == "postgres" && d.pgDSN != "" {
		container, err := sqlstore.New(ctx, "postgres", d.pgDSN, &noopLogger{})
		if err != nil {
			return nil, fmt.Errorf("whatsmeow: criar store PostgreSQL: %w", err)
		}
		return container, nil
	}

	dbPath := filepath.Join(d.baseDir, connectionID+".db")
	if pairing {
		// Pareamento novo descarta qualquer device antigo da conexão.
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			d.log.Warn("erro ao descartar sessão SQLite antiga",
				zap.String("connection_id", connectionID), zap.Error(err))
		}
	}

	sqlitePath := fmt.Sprintf("file:%s?_foreign_keys=on", dbPath)
	container, err := sqlstore.New(ctx, "sqlite3", sqlitePath, &noopLogger{})
	if err != nil {
		return nil, fmt.Errorf("whatsmeow: criar store SQLite: %w", err)
	}
	return container, nil
}

// resolveDevice localiza o device do blob de credenciais, ou cria um
// novo para pareamento. terminal não vazio indica blob órfão.
func (d *Dialer) resolveDevice(ctx context.Context, container *sqlstore.Container, conn model.Connection, creds []byte) (device *store.Device, terminal string, err error) {
	if len(creds) == 0 {
		if d.driver == "postgres" && d.pgDSN != "" {
			return container.NewDevice(), "", nil
		}
		device, err = container.GetFirstDevice(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("whatsmeow: obter device: %w", err)
		}
		return device, "", nil
	}

	var stored storedSession
	if err := json.Unmarshal(creds, &stored); err != nil {
		d.log.Warn("blob de credenciais ilegível",
			zap.String("connection_id", conn.ID), zap.Error(err))
		return container.NewDevice(), "credenciais armazenadas ilegíveis", nil
	}

	jid, err := types.ParseJID(stored.JID)
	if err != nil {
		return container.NewDevice(), "credenciais com JID inválido", nil
	}

	device, err = container.GetDevice(ctx, jid)
	if err != nil || device == nil || device.ID == nil || device.ID.IsEmpty() {
		d.log.Warn("device não encontrado no store para o JID armazenado",
			zap.String("connection_id", conn.ID),
			zap.String("jid", stored.JID))
		return container.NewDevice(), "sessão armazenada não encontrada", nil
	}
	return device, "", nil
}

func (d *Dialer) handleEvent(conn model.Connection, cli *whatsmeow.Client, sink func(session.Event), evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		sink(session.Connected{})

	case *events.PairSuccess:
		blob, err := json.Marshal(storedSession{JID: v.ID.String()})
		if err != nil {
			d.log.Error("erro ao serializar credenciais",
				zap.String("connection_id", conn.ID), zap.Error(err))
			return
		}
		sink(session.Paired{JID: v.ID.String(), Credentials: blob})

	case *events.PairError:
		sink(session.Closed{Class: session.CloseRecoverable, Reason: fmt.Sprintf("erro de pareamento: %v", v.Error)})

	case *events.Disconnected:
		sink(session.Closed{Class: session.CloseRecoverable, Reason: "socket fechado"})

	case *events.StreamError:
		sink(session.Closed{Class: session.CloseRecoverable, Reason: "erro de stream: " + v.Code})

	case *events.ConnectFailure:
		sink(session.Closed{Class: session.CloseRecoverable, Reason: "falha de conexão: " + v.Reason.String()})

	case *events.LoggedOut:
		sink(session.Closed{Class: session.CloseTerminal, Reason: "deslogado: " + v.Reason.String()})

	case *events.StreamReplaced:
		sink(session.Closed{Class: session.CloseTerminal, Reason: "stream substituído por outro login"})

	case *events.TemporaryBan:
		sink(session.Closed{Class: session.CloseTerminal, Reason: "banido temporariamente: " + v.Code.String()})

	case *events.ClientOutdated:
		sink(session.Closed{Class: session.CloseTerminal, Reason: "cliente desatualizado"})

	case *events.Message:
		d.handleMessage(conn, cli, sink, v)

	default:
		d.log.Debug("evento não tratado",
			zap.String("connection_id", conn.ID),
			zap.String("event_type", fmt.Sprintf("%T", evt)))
	}
}

// handleMessage normaliza uma mensagem recebida. Mensagens próprias e
// de grupo são ignoradas: a triagem trata só conversas diretas com
// clientes.
func (d *Dialer) handleMessage(conn model.Connection, cli *whatsmeow.Client, sink func(session.Event), evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	msg := session.MessageReceived{
		MessageID:  evt.Info.ID,
		Phone:      evt.Info.Sender.User,
		PushName:   evt.Info.PushName,
		ReceivedAt: evt.Info.Timestamp,
	}

	switch {
	case evt.Message.GetConversation() != "":
		msg.Content = evt.Message.GetConversation()

	case evt.Message.GetExtendedTextMessage() != nil:
		msg.Content = evt.Message.GetExtendedTextMessage().GetText()

	case evt.Message.GetImageMessage() != nil:
		img := evt.Message.GetImageMessage()
		msg.Content = img.GetCaption()
		msg.MediaURL = d.downloadMedia(conn, cli, evt.Info.ID, img, img.GetMimetype())

	case evt.Message.GetVideoMessage() != nil:
		vid := evt.Message.GetVideoMessage()
		msg.Content = vid.GetCaption()
		msg.MediaURL = d.downloadMedia(conn, cli, evt.Info.ID, vid, vid.GetMimetype())

	case evt.Message.GetDocumentMessage() != nil:
		doc := evt.Message.GetDocumentMessage()
		msg.Content = doc.GetFileName()
		msg.MediaURL = d.downloadMedia(conn, cli, evt.Info.ID, doc, doc.GetMimetype())

	case evt.Message.GetAudioMessage() != nil:
		aud := evt.Message.GetAudioMessage()
		msg.MediaURL = d.downloadMedia(conn, cli, evt.Info.ID, aud, aud.GetMimetype())

	default:
		d.log.Debug("mensagem sem conteúdo tratável",
			zap.String("connection_id", conn.ID),
			zap.String("message_id", evt.Info.ID))
		return
	}

	if msg.Content == "" && msg.MediaURL == "" {
		return
	}

	sink(msg)
}

func (d *Dialer) downloadMedia(conn model.Connection, cli *whatsmeow.Client, messageID string, downloadable whatsmeow.DownloadableMessage, mimetype string) string {
	if d.media == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := cli.Download(ctx, downloadable)
	if err != nil {
		d.log.Error("erro ao baixar mídia",
			zap.String("connection_id", conn.ID),
			zap.String("message_id", messageID),
			zap.Error(err))
		return ""
	}

	mediaID, err := d.media.Save(ctx, conn.ID, messageID, data, mimetype)
	if err != nil {
		d.log.Error("erro ao salvar mídia",
			zap.String("connection_id", conn.ID),
			zap.String("message_id", messageID),
			zap.Error(err))
		return ""
	}

	return fmt.Sprintf("%s/api/media/%s/%s", d.apiBaseURL, conn.ID, mediaID)
}

// protocolClient adapta *whatsmeow.Client à interface de sessão.
type protocolClient struct {
	cli *whatsmeow.Client
}

func (c *protocolClient) SendText(ctx context.Context, to, text string) (string, error) {
	jid, err := parseRecipient(to)
	if err != nil {
		return "", err
	}

	resp, err := c.cli.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("whatsmeow: enviar mensagem: %w", err)
	}
	return resp.ID, nil
}

func (c *protocolClient) IsLoggedIn() bool { return c.cli.IsLoggedIn() }

func (c *protocolClient) Disconnect() { c.cli.Disconnect() }

func (c *protocolClient) Logout(ctx context.Context) error {
	return c.cli.Logout(ctx)
}

// parseRecipient aceita JID completo ou número de telefone puro.
func parseRecipient(to string) (types.JID, error) {
	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("whatsmeow: destinatário inválido %q: %w", to, err)
		}
		return jid, nil
	}

	clean := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, to)
	if clean == "" {
		return types.EmptyJID, fmt.Errorf("whatsmeow: destinatário inválido %q", to)
	}
	return types.NewJID(clean, types.DefaultUserServer), nil
}
