package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

// Config parametriza os temporizadores do gerenciador.
type Config struct {
	// PairingTimeout limita a janela de pareamento quando não há
	// credenciais armazenadas. Expirada, a conexão volta a
	// disconnected em vez de esperar indefinidamente.
	PairingTimeout time.Duration
	// ReconnectBase e ReconnectMax delimitam o backoff exponencial
	// aplicado a desconexões recuperáveis.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PairingTimeout <= 0 {
		c.PairingTimeout = 2 * time.Minute
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 2 * time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = time.Minute
	}
	return c
}

// Manager é o dono do ciclo de vida dos sockets: um ator por conexão,
// nunca dois sockets vivos para o mesmo id. Componentes externos nunca
// tocam o socket diretamente; pedem o Client ao Manager.
type Manager struct {
	dialer   Dialer
	creds    CredentialStore
	repo     storage.ConnectionRepository
	notifier Notifier
	locker   Locker
	cfg      Config
	log      *zap.Logger

	mu       sync.RWMutex
	handler  MessageHandler
	sessions map[string]*session
}

func NewManager(dialer Dialer, creds CredentialStore, repo storage.ConnectionRepository, notifier Notifier, cfg Config, log *zap.Logger) *Manager {
	return &Manager{
		dialer:   dialer,
		creds:    creds,
		repo:     repo,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		log:      log,
		sessions: make(map[string]*session),
	}
}

// SetLocker registra o lock distribuído opcional por conexão.
func (m *Manager) SetLocker(locker Locker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locker = locker
}

// SetMessageHandler registra o destino das mensagens recebidas
// (roteador de entrada).
func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

type session struct {
	conn   model.Connection
	cancel context.CancelFunc
	done   chan struct{}
	logout bool

	mu     sync.RWMutex
	status model.ConnectionStatus
	client Client
}

func (s *session) setLogout() {
	s.mu.Lock()
	s.logout = true
	s.mu.Unlock()
}

func (s *session) logoutOnExit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logout
}

// Start inicia o ciclo de vida da conexão. Retorna ErrAlreadyStarted
// se já existe sessão para o id; as transições de estado seguem em
// background e são publicadas via Notifier.
func (m *Manager) Start(ctx context.Context, conn model.Connection) error {
	m.mu.Lock()
	if _, exists := m.sessions[conn.ID]; exists {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}

	var release func()
	if m.locker != nil {
		var err error
		release, err = m.locker.TryLock(ctx, conn.ID)
		if err != nil {
			m.mu.Unlock()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
		status: model.ConnectionStatusDisconnected,
	}
	m.sessions[conn.ID] = s
	m.mu.Unlock()

	m.log.Info("iniciando sessão", zap.String("connection_id", conn.ID), zap.String("tenant_id", conn.TenantID))

	go m.run(runCtx, s, release)
	return nil
}

// StartAll restaura, em background, as conexões habilitadas que têm
// credenciais armazenadas. Conexões sem credenciais não são iniciadas:
// pareamento é sempre um fluxo explícito do operador.
func (m *Manager) StartAll(ctx context.Context, conns []model.Connection) {
	restored := 0
	for _, conn := range conns {
		if !conn.Enabled {
			continue
		}
		creds, err := m.creds.Load(ctx, conn.ID)
		if err != nil || len(creds) == 0 {
			continue
		}
		if err := m.Start(ctx, conn); err != nil {
			m.log.Warn("erro ao restaurar sessão", zap.String("connection_id", conn.ID), zap.Error(err))
			continue
		}
		restored++
	}
	m.log.Info("restauração de sessões iniciada", zap.Int("total", len(conns)), zap.Int("restauradas", restored))
}

// Reset interrompe qualquer sequência em andamento, derruba o socket
// com logout e limpa as credenciais. A conexão termina em disconnected
// e exige novo pareamento.
func (m *Manager) Reset(ctx context.Context, connectionID string) error {
	m.mu.RLock()
	s := m.sessions[connectionID]
	m.mu.RUnlock()

	if s != nil {
		s.setLogout()
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := m.creds.Clear(ctx, connectionID); err != nil {
		return err
	}

	m.persistStatus(connectionID, model.ConnectionStatusDisconnected, "")
	m.log.Info("conexão resetada", zap.String("connection_id", connectionID))
	return nil
}

// Stop encerra a sessão preservando as credenciais (shutdown gracioso).
func (m *Manager) Stop(ctx context.Context, connectionID string) error {
	m.mu.RLock()
	s := m.sessions[connectionID]
	m.mu.RUnlock()

	if s == nil {
		return ErrSessionNotFound
	}

	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown encerra todas as sessões sem limpar credenciais.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.cancel()
	}
	for _, s := range sessions {
		select {
		case <-s.done:
		case <-ctx.Done():
			m.log.Warn("shutdown: sessão não encerrou a tempo", zap.String("connection_id", s.conn.ID))
			return
		}
	}
}

// Client devolve o socket vivo da conexão, ou ErrConnectionNotReady
// se ela não está em connected.
func (m *Manager) Client(connectionID string) (Client, error) {
	m.mu.RLock()
	s := m.sessions[connectionID]
	m.mu.RUnlock()

	if s == nil {
		return nil, ErrConnectionNotReady
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != model.ConnectionStatusConnected || s.client == nil {
		return nil, ErrConnectionNotReady
	}
	return s.client, nil
}

// Status devolve o estado atual; disconnected quando não há sessão.
func (m *Manager) Status(connectionID string) model.ConnectionStatus {
	m.mu.RLock()
	s := m.sessions[connectionID]
	m.mu.RUnlock()

	if s == nil {
		return model.ConnectionStatusDisconnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// QRCode devolve o desafio de pareamento vigente, vazio fora de
// awaiting_pairing.
func (m *Manager) QRCode(connectionID string) string {
	m.mu.RLock()
	s := m.sessions[connectionID]
	m.mu.RUnlock()

	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != model.ConnectionStatusAwaitingPairing {
		return ""
	}
	return s.conn.QRCode
}

type outcome int

const (
	outcomeRecoverable outcome = iota
	outcomeTerminal
	outcomePairingExpired
	outcomeReset
)

func (m *Manager) run(ctx context.Context, s *session, release func()) {
	defer close(s.done)

	m.loop(ctx, s)

	// Remove a sessão do mapa antes de publicar o estado final: quem
	// observa disconnected pode chamar Start em seguida.
	m.mu.Lock()
	delete(m.sessions, s.conn.ID)
	m.mu.Unlock()
	if release != nil {
		release()
	}

	m.setStatus(s, model.ConnectionStatusDisconnected, "")
}

func (m *Manager) loop(ctx context.Context, s *session) {
	backoff := m.cfg.ReconnectBase
	for {
		result, wasConnected := m.connectOnce(ctx, s)
		if wasConnected {
			backoff = m.cfg.ReconnectBase
		}

		switch result {
		case outcomeReset:
			return

		case outcomeTerminal:
			if err := m.creds.Clear(context.Background(), s.conn.ID); err != nil {
				m.log.Warn("erro ao limpar credenciais após desconexão terminal",
					zap.String("connection_id", s.conn.ID), zap.Error(err))
			}
			m.log.Warn("desconexão terminal, credenciais removidas",
				zap.String("connection_id", s.conn.ID))
			return

		case outcomePairingExpired:
			m.log.Warn("pareamento não concluído dentro da janela",
				zap.String("connection_id", s.conn.ID),
				zap.Duration("timeout", m.cfg.PairingTimeout))
			return

		case outcomeRecoverable:
			m.setStatus(s, model.ConnectionStatusReconnecting, "")
			m.log.Info("desconexão recuperável, reconectando",
				zap.String("connection_id", s.conn.ID),
				zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > m.cfg.ReconnectMax {
				backoff = m.cfg.ReconnectMax
			}
		}
	}
}

// connectOnce executa um ciclo completo conectar→encerrar e devolve a
// classificação do encerramento. wasConnected indica se o ciclo chegou
// a connected (zera o backoff do chamador).
func (m *Manager) connectOnce(ctx context.Context, s *session) (outcome, bool) {
	m.setStatus(s, model.ConnectionStatusConnecting, "")

	creds, err := m.creds.Load(ctx, s.conn.ID)
	if err != nil {
		m.log.Warn("erro ao carregar credenciais, forçando pareamento",
			zap.String("connection_id", s.conn.ID), zap.Error(err))
		creds = nil
	}

	sink := newEventSink(256)
	client, err := m.dialer.Dial(ctx, s.conn, creds, sink.emit)
	if err != nil {
		sink.close()
		if ctx.Err() != nil {
			return outcomeReset, false
		}
		m.log.Warn("erro ao abrir sessão de protocolo",
			zap.String("connection_id", s.conn.ID), zap.Error(err))
		return outcomeRecoverable, false
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	// Janela de pareamento apenas quando não há credenciais; com
	// credenciais válidas o protocolo vai direto a connected.
	var pairingC <-chan time.Time
	var pairingTimer *time.Timer
	if len(creds) == 0 {
		pairingTimer = time.NewTimer(m.cfg.PairingTimeout)
		pairingC = pairingTimer.C
		defer pairingTimer.Stop()
	}

	wasConnected := false
	teardown := func() {
		sink.close()
		s.mu.Lock()
		s.client = nil
		s.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			teardown()
			if s.logoutOnExit() {
				logoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				if err := client.Logout(logoutCtx); err != nil {
					m.log.Warn("logout falhou, forçando disconnect",
						zap.String("connection_id", s.conn.ID), zap.Error(err))
					client.Disconnect()
				}
				cancel()
			} else {
				client.Disconnect()
			}
			return outcomeReset, wasConnected

		case <-pairingC:
			teardown()
			client.Disconnect()
			return outcomePairingExpired, wasConnected

		case ev := <-sink.ch:
			switch ev := ev.(type) {
			case PairingCode:
				m.log.Info("desafio de pareamento recebido",
					zap.String("connection_id", s.conn.ID),
					zap.Duration("qr_timeout", ev.Timeout))
				m.setStatus(s, model.ConnectionStatusAwaitingPairing, ev.Code)
				if m.notifier != nil {
					m.notifier.PairingCode(s.snapshot(), ev.Code)
				}

			case Paired:
				m.log.Info("pareamento concluído",
					zap.String("connection_id", s.conn.ID),
					zap.String("jid", ev.JID))
				if err := m.creds.Save(context.Background(), s.conn.ID, ev.Credentials); err != nil {
					m.log.Error("erro ao persistir credenciais",
						zap.String("connection_id", s.conn.ID), zap.Error(err))
				}
				m.persistJID(s, ev.JID)

			case CredentialsRotated:
				if err := m.creds.Save(context.Background(), s.conn.ID, ev.Credentials); err != nil {
					m.log.Warn("erro ao persistir rotação de credenciais",
						zap.String("connection_id", s.conn.ID), zap.Error(err))
				}

			case Connected:
				if pairingTimer != nil {
					pairingTimer.Stop()
					pairingC = nil
				}
				wasConnected = true
				m.setStatus(s, model.ConnectionStatusConnected, "")
				m.log.Info("conexão estabelecida", zap.String("connection_id", s.conn.ID))

			case Closed:
				teardown()
				if ev.Class == CloseTerminal {
					m.log.Warn("socket fechado de forma terminal",
						zap.String("connection_id", s.conn.ID),
						zap.String("reason", ev.Reason))
					return outcomeTerminal, wasConnected
				}
				m.log.Info("socket fechado",
					zap.String("connection_id", s.conn.ID),
					zap.String("reason", ev.Reason))
				return outcomeRecoverable, wasConnected

			case MessageReceived:
				m.mu.RLock()
				handler := m.handler
				m.mu.RUnlock()
				if handler != nil {
					handler.HandleMessage(ctx, s.snapshot(), ev)
				}
			}
		}
	}
}

func (s *session) snapshot() model.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (m *Manager) setStatus(s *session, status model.ConnectionStatus, qr string) {
	s.mu.Lock()
	s.status = status
	s.conn.Status = status
	s.conn.QRCode = qr
	conn := s.conn
	s.mu.Unlock()

	m.persistStatus(conn.ID, status, qr)
	if m.notifier != nil {
		m.notifier.ConnectionStatus(conn, status)
	}
}

func (m *Manager) persistStatus(connectionID string, status model.ConnectionStatus, qr string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.UpdateStatus(ctx, connectionID, status, qr); err != nil {
		m.log.Warn("erro ao persistir status da conexão",
			zap.String("connection_id", connectionID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func (m *Manager) persistJID(s *session, jid string) {
	s.mu.Lock()
	s.conn.WhatsAppJID = jid
	conn := s.conn
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.repo.Update(ctx, conn); err != nil {
		m.log.Warn("erro ao salvar JID da conexão",
			zap.String("connection_id", conn.ID),
			zap.String("jid", jid),
			zap.Error(err))
	}
}

// eventSink entrega eventos do protocolo ao loop da sessão. Após
// close, eventos são descartados: um listener atrasado nunca pode
// transicionar estado depois do teardown.
type eventSink struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newEventSink(buf int) *eventSink {
	return &eventSink{ch: make(chan Event, buf)}
}

func (k *eventSink) emit(ev Event) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	select {
	case k.ch <- ev:
	default:
		// Buffer cheio: descarta o mais antigo para não travar o
		// produtor do protocolo.
		select {
		case <-k.ch:
		default:
		}
		select {
		case k.ch <- ev:
		default:
		}
	}
}

func (k *eventSink) close() {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
}
