package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/session"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type fakeClient struct {
	mu           sync.Mutex
	disconnects  int
	logouts      int
	sentMessages []string
}

func (c *fakeClient) SendText(ctx context.Context, to, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentMessages = append(c.sentMessages, text)
	return "MSG1", nil
}

func (c *fakeClient) IsLoggedIn() bool { return true }

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return nil
}

func (c *fakeClient) logoutCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

// scriptedDialer executa um roteiro por tentativa de conexão e guarda
// o sink para simular eventos tardios do protocolo.
type scriptedDialer struct {
	mu     sync.Mutex
	calls  int
	sinks  []func(session.Event)
	client *fakeClient
	script func(call int, creds []byte, sink func(session.Event))
	err    error
}

func (d *scriptedDialer) Dial(ctx context.Context, conn model.Connection, creds []byte, sink func(session.Event)) (session.Client, error) {
	d.mu.Lock()
	call := d.calls
	d.calls++
	d.sinks = append(d.sinks, sink)
	script := d.script
	d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	if script != nil {
		go script(call, creds, sink)
	}
	return d.client, nil
}

func (d *scriptedDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *scriptedDialer) lastSink() func(session.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sinks) == 0 {
		return nil
	}
	return d.sinks[len(d.sinks)-1]
}

type fakeCredStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	clears int
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{blobs: make(map[string][]byte)}
}

func (s *fakeCredStore) Load(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[id], nil
}

func (s *fakeCredStore) Save(ctx context.Context, id string, creds []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = creds
	return nil
}

func (s *fakeCredStore) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	s.clears++
	return nil
}

func (s *fakeCredStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[id]
	return ok
}

type fakeConnRepo struct {
	mu       sync.Mutex
	statuses []model.ConnectionStatus
	lastJID  string
}

func (r *fakeConnRepo) Create(ctx context.Context, conn model.Connection) (model.Connection, error) {
	return conn, nil
}

func (r *fakeConnRepo) GetByID(ctx context.Context, id string) (model.Connection, error) {
	return model.Connection{ID: id}, nil
}

func (r *fakeConnRepo) List(ctx context.Context) ([]model.Connection, error) { return nil, nil }

func (r *fakeConnRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Connection, error) {
	return nil, nil
}

func (r *fakeConnRepo) Update(ctx context.Context, conn model.Connection) (model.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastJID = conn.WhatsAppJID
	return conn, nil
}

func (r *fakeConnRepo) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus, qrCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeConnRepo) Disable(ctx context.Context, id string) error { return nil }

func (r *fakeConnRepo) jid() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastJID
}

type statusChange struct {
	status model.ConnectionStatus
	qr     string
}

type fakeNotifier struct {
	statuses chan statusChange
	codes    chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		statuses: make(chan statusChange, 64),
		codes:    make(chan string, 8),
	}
}

func (n *fakeNotifier) ConnectionStatus(conn model.Connection, status model.ConnectionStatus) {
	n.statuses <- statusChange{status: status, qr: conn.QRCode}
}

func (n *fakeNotifier) PairingCode(conn model.Connection, code string) {
	n.codes <- code
}

func (n *fakeNotifier) waitStatus(t *testing.T, want model.ConnectionStatus) statusChange {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ch := <-n.statuses:
			if ch.status == want {
				return ch
			}
		case <-deadline:
			t.Fatalf("timeout esperando status %s", want)
		}
	}
}

func (n *fakeNotifier) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ch := <-n.statuses:
		t.Fatalf("transição inesperada de status: %s", ch.status)
	case <-time.After(d):
	}
}

func testConfig() session.Config {
	return session.Config{
		PairingTimeout: 2 * time.Second,
		ReconnectBase:  10 * time.Millisecond,
		ReconnectMax:   50 * time.Millisecond,
	}
}

func testConnection() model.Connection {
	return model.Connection{
		ID:       "conn-1",
		TenantID: "tenant-1",
		Name:     "Recepção",
		Channel:  model.ChannelWhatsApp,
		Enabled:  true,
	}
}

func TestStartWithStoredCredentialsSkipsPairing(t *testing.T) {
	creds := newFakeCredStore()
	creds.blobs["conn-1"] = []byte("blob")

	dialer := &scriptedDialer{
		client: &fakeClient{},
		script: func(call int, got []byte, sink func(session.Event)) {
			if string(got) != "blob" {
				t.Errorf("credenciais não repassadas ao dialer: %q", got)
			}
			sink(session.Connected{})
		},
	}

	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, creds, &fakeConnRepo{}, notifier, testConfig(), zap.NewNop())

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Shutdown(context.Background())

	notifier.waitStatus(t, model.ConnectionStatusConnecting)
	notifier.waitStatus(t, model.ConnectionStatusConnected)

	select {
	case code := <-notifier.codes:
		t.Fatalf("pareamento não deveria ser exigido com credenciais salvas, recebeu código %q", code)
	default:
	}

	if _, err := mgr.Client("conn-1"); err != nil {
		t.Fatalf("Client após connected: %v", err)
	}
}

func TestPairingFlowPersistsCredentialsAndJID(t *testing.T) {
	creds := newFakeCredStore()
	repo := &fakeConnRepo{}

	dialer := &scriptedDialer{
		client: &fakeClient{},
		script: func(call int, got []byte, sink func(session.Event)) {
			if got != nil {
				t.Errorf("esperava dial sem credenciais, recebeu %q", got)
			}
			sink(session.PairingCode{Code: "QR-DATA", Timeout: 20 * time.Second})
			sink(session.Paired{JID: "5511999990000@s.whatsapp.net", Credentials: []byte("new-blob")})
			sink(session.Connected{})
		},
	}

	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, creds, repo, notifier, testConfig(), zap.NewNop())

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Shutdown(context.Background())

	pairing := notifier.waitStatus(t, model.ConnectionStatusAwaitingPairing)
	if pairing.qr != "QR-DATA" {
		t.Errorf("QR não publicado na transição: %q", pairing.qr)
	}
	select {
	case code := <-notifier.codes:
		if code != "QR-DATA" {
			t.Errorf("código de pareamento = %q, esperava QR-DATA", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout esperando código de pareamento")
	}

	connected := notifier.waitStatus(t, model.ConnectionStatusConnected)
	if connected.qr != "" {
		t.Errorf("QR deveria ser limpo ao conectar, ainda é %q", connected.qr)
	}

	if got := string(creds.blobs["conn-1"]); got != "new-blob" {
		t.Errorf("credenciais persistidas = %q, esperava new-blob", got)
	}
	if repo.jid() != "5511999990000@s.whatsapp.net" {
		t.Errorf("JID persistido = %q", repo.jid())
	}
}

func TestRecoverableCloseReconnectsKeepingCredentials(t *testing.T) {
	creds := newFakeCredStore()
	creds.blobs["conn-1"] = []byte("blob")

	dialer := &scriptedDialer{client: &fakeClient{}}
	dialer.script = func(call int, got []byte, sink func(session.Event)) {
		sink(session.Connected{})
		if call == 0 {
			sink(session.Closed{Class: session.CloseRecoverable, Reason: "stream error"})
		}
	}

	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, creds, &fakeConnRepo{}, notifier, testConfig(), zap.NewNop())

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Shutdown(context.Background())

	notifier.waitStatus(t, model.ConnectionStatusConnected)
	notifier.waitStatus(t, model.ConnectionStatusReconnecting)
	notifier.waitStatus(t, model.ConnectionStatusConnected)

	if dialer.callCount() != 2 {
		t.Errorf("esperava 2 tentativas de dial, houve %d", dialer.callCount())
	}
	if !creds.has("conn-1") {
		t.Error("credenciais não deveriam ser limpas em desconexão recuperável")
	}
}

func TestTerminalCloseClearsCredentials(t *testing.T) {
	creds := newFakeCredStore()
	creds.blobs["conn-1"] = []byte("blob")

	dialer := &scriptedDialer{
		client: &fakeClient{},
		script: func(call int, got []byte, sink func(session.Event)) {
			sink(session.Connected{})
			sink(session.Closed{Class: session.CloseTerminal, Reason: "logged out"})
		},
	}

	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, creds, &fakeConnRepo{}, notifier, testConfig(), zap.NewNop())

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	notifier.waitStatus(t, model.ConnectionStatusConnected)
	notifier.waitStatus(t, model.ConnectionStatusDisconnected)

	if creds.has("conn-1") {
		t.Error("credenciais deveriam ser limpas em desconexão terminal")
	}
	if _, err := mgr.Client("conn-1"); !errors.Is(err, session.ErrConnectionNotReady) {
		t.Errorf("Client após terminal = %v, esperava ErrConnectionNotReady", err)
	}

	// A sessão saiu do mapa: um novo Start deve ser aceito.
	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start após desconexão terminal: %v", err)
	}
	mgr.Shutdown(context.Background())
}

func TestPairingTimeoutReturnsToDisconnected(t *testing.T) {
	creds := newFakeCredStore()
	client := &fakeClient{}

	dialer := &scriptedDialer{
		client: client,
		script: func(call int, got []byte, sink func(session.Event)) {
			sink(session.PairingCode{Code: "QR-DATA", Timeout: 20 * time.Second})
		},
	}

	cfg := testConfig()
	cfg.PairingTimeout = 50 * time.Millisecond

	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, creds, &fakeConnRepo{}, notifier, cfg, zap.NewNop())

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	notifier.waitStatus(t, model.ConnectionStatusAwaitingPairing)
	notifier.waitStatus(t, model.ConnectionStatusDisconnected)

	if dialer.callCount() != 1 {
		t.Errorf("timeout de pareamento não deve reconectar sozinho, houve %d dials", dialer.callCount())
	}
}

func TestResetCancelsSequenceAndClearsCredentials(t *testing.T) {
	creds := newFakeCredStore()
	creds.blobs["conn-1"] = []byte("blob")
	client := &fakeClient{}

	dialer := &scriptedDialer{
		client: client,
		script: func(call int, got []byte, sink func(session.Event)) {
			sink(session.Connected{})
		},
	}

	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, creds, &fakeConnRepo{}, notifier, testConfig(), zap.NewNop())

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	notifier.waitStatus(t, model.ConnectionStatusConnected)

	if err := mgr.Reset(context.Background(), "conn-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if creds.has("conn-1") {
		t.Error("Reset deve limpar as credenciais")
	}
	if client.logoutCount() == 0 {
		t.Error("Reset deve encerrar o socket com logout")
	}
	if got := mgr.Status("conn-1"); got != model.ConnectionStatusDisconnected {
		t.Errorf("Status após Reset = %s", got)
	}

	// Reset de conexão sem sessão ativa também limpa credenciais e não falha.
	if err := mgr.Reset(context.Background(), "conn-1"); err != nil {
		t.Fatalf("Reset sem sessão ativa: %v", err)
	}

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start após Reset: %v", err)
	}
	mgr.Shutdown(context.Background())
}

func TestStartTwiceReturnsAlreadyStarted(t *testing.T) {
	dialer := &scriptedDialer{client: &fakeClient{}}
	mgr := session.NewManager(dialer, newFakeCredStore(), &fakeConnRepo{}, newFakeNotifier(), testConfig(), zap.NewNop())

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Shutdown(context.Background())

	if err := mgr.Start(context.Background(), testConnection()); !errors.Is(err, session.ErrAlreadyStarted) {
		t.Errorf("segundo Start = %v, esperava ErrAlreadyStarted", err)
	}
}

func TestClientRejectsWhenNotConnected(t *testing.T) {
	dialer := &scriptedDialer{
		client: &fakeClient{},
		script: func(call int, got []byte, sink func(session.Event)) {
			sink(session.PairingCode{Code: "QR-DATA", Timeout: 20 * time.Second})
		},
	}

	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, newFakeCredStore(), &fakeConnRepo{}, notifier, testConfig(), zap.NewNop())

	if _, err := mgr.Client("conn-1"); !errors.Is(err, session.ErrConnectionNotReady) {
		t.Errorf("Client sem sessão = %v, esperava ErrConnectionNotReady", err)
	}

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Shutdown(context.Background())

	notifier.waitStatus(t, model.ConnectionStatusAwaitingPairing)
	if _, err := mgr.Client("conn-1"); !errors.Is(err, session.ErrConnectionNotReady) {
		t.Errorf("Client em awaiting_pairing = %v, esperava ErrConnectionNotReady", err)
	}
}

func TestLateProtocolEventsAfterCloseAreIgnored(t *testing.T) {
	creds := newFakeCredStore()
	creds.blobs["conn-1"] = []byte("blob")

	dialer := &scriptedDialer{
		client: &fakeClient{},
		script: func(call int, got []byte, sink func(session.Event)) {
			sink(session.Connected{})
			sink(session.Closed{Class: session.CloseTerminal, Reason: "logged out"})
		},
	}

	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, creds, &fakeConnRepo{}, notifier, testConfig(), zap.NewNop())

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	notifier.waitStatus(t, model.ConnectionStatusConnected)
	notifier.waitStatus(t, model.ConnectionStatusDisconnected)

	// Evento atrasado de um listener antigo não pode ressuscitar a sessão.
	dialer.lastSink()(session.Connected{})
	notifier.expectQuiet(t, 100*time.Millisecond)

	if got := mgr.Status("conn-1"); got != model.ConnectionStatusDisconnected {
		t.Errorf("Status após evento atrasado = %s", got)
	}
}

func TestInboundMessagesReachHandler(t *testing.T) {
	creds := newFakeCredStore()
	creds.blobs["conn-1"] = []byte("blob")

	dialer := &scriptedDialer{
		client: &fakeClient{},
		script: func(call int, got []byte, sink func(session.Event)) {
			sink(session.Connected{})
			sink(session.MessageReceived{
				MessageID:  "WAMID-1",
				Phone:      "5511999990000",
				Content:    "Olá, preciso de ajuda com meu processo",
				ReceivedAt: time.Now(),
			})
		},
	}

	received := make(chan session.MessageReceived, 1)
	notifier := newFakeNotifier()
	mgr := session.NewManager(dialer, creds, &fakeConnRepo{}, notifier, testConfig(), zap.NewNop())
	mgr.SetMessageHandler(messageHandlerFunc(func(ctx context.Context, conn model.Connection, msg session.MessageReceived) {
		received <- msg
	}))

	if err := mgr.Start(context.Background(), testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Shutdown(context.Background())

	select {
	case msg := <-received:
		if msg.Phone != "5511999990000" || msg.MessageID != "WAMID-1" {
			t.Errorf("mensagem inesperada: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout esperando mensagem no handler")
	}
}

type messageHandlerFunc func(ctx context.Context, conn model.Connection, msg session.MessageReceived)

func (f messageHandlerFunc) HandleMessage(ctx context.Context, conn model.Connection, msg session.MessageReceived) {
	f(ctx, conn, msg)
}

func TestLockerDeniesSecondInstance(t *testing.T) {
	dialer := &scriptedDialer{client: &fakeClient{}}
	mgr := session.NewManager(dialer, newFakeCredStore(), &fakeConnRepo{}, newFakeNotifier(), testConfig(), zap.NewNop())
	mgr.SetLocker(lockerFunc(func(ctx context.Context, id string) (func(), error) {
		return nil, session.ErrLockNotAcquired
	}))

	if err := mgr.Start(context.Background(), testConnection()); !errors.Is(err, session.ErrLockNotAcquired) {
		t.Errorf("Start com lock ocupado = %v, esperava ErrLockNotAcquired", err)
	}
}

type lockerFunc func(ctx context.Context, connectionID string) (func(), error)

func (f lockerFunc) TryLock(ctx context.Context, connectionID string) (func(), error) {
	return f(ctx, connectionID)
}
