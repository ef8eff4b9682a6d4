package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/inbound"
	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type memStore struct {
	mu        sync.Mutex
	contacts  []model.Contact
	tickets   []model.Ticket
	messages  []model.TicketMessage
	processes []model.LegalProcess
	entries   []model.TimelineEntry
}

// -- ContactRepository

func (s *memStore) Create(ctx context.Context, c model.Contact) (model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, c)
	return c, nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Contact{}, storage.ErrNotFound
}

func (s *memStore) GetByPhone(ctx context.Context, tenantID, phone string) (model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.TenantID == tenantID && c.Phone == phone {
			return c, nil
		}
	}
	return model.Contact{}, storage.ErrNotFound
}

func (s *memStore) ListByTenant(ctx context.Context, tenantID string) ([]model.Contact, error) {
	return nil, nil
}

func (s *memStore) Update(ctx context.Context, c model.Contact) (model.Contact, error) {
	return c, nil
}

type ticketStore struct{ s *memStore }

func (t ticketStore) Create(ctx context.Context, ticket model.Ticket) (model.Ticket, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.tickets = append(t.s.tickets, ticket)
	return ticket, nil
}

func (t ticketStore) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, tk := range t.s.tickets {
		if tk.ID == id {
			return tk, nil
		}
	}
	return model.Ticket{}, storage.ErrNotFound
}

func (t ticketStore) GetActiveByContact(ctx context.Context, tenantID, contactID string) (model.Ticket, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.s.tickets) - 1; i >= 0; i-- {
		tk := t.s.tickets[i]
		if tk.TenantID == tenantID && tk.ContactID == contactID && tk.Status.Active() {
			return tk, nil
		}
	}
	return model.Ticket{}, storage.ErrNotFound
}

func (t ticketStore) ListByTenant(ctx context.Context, tenantID string, statuses []model.TicketStatus) ([]model.Ticket, error) {
	return nil, nil
}

func (t ticketStore) UpdateStatus(ctx context.Context, id string, status model.TicketStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := range t.s.tickets {
		if t.s.tickets[i].ID == id {
			t.s.tickets[i].Status = status
			return nil
		}
	}
	return storage.ErrNotFound
}

type messageStore struct{ s *memStore }

func (m messageStore) Create(ctx context.Context, msg model.TicketMessage) (model.TicketMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.messages = append(m.s.messages, msg)
	return msg, nil
}

func (m messageStore) GetByID(ctx context.Context, id string) (model.TicketMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, msg := range m.s.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return model.TicketMessage{}, storage.ErrNotFound
}

func (m messageStore) ListByTicket(ctx context.Context, ticketID string) ([]model.TicketMessage, error) {
	return nil, nil
}

func (m messageStore) LastContactMessage(ctx context.Context, ticketID, beforeID string) (model.TicketMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	before := len(m.s.messages)
	for i, msg := range m.s.messages {
		if msg.ID == beforeID {
			before = i
			break
		}
	}
	for i := before - 1; i >= 0; i-- {
		msg := m.s.messages[i]
		if msg.TicketID == ticketID && msg.SenderType == model.SenderContact {
			return msg, nil
		}
	}
	return model.TicketMessage{}, storage.ErrNotFound
}

func (m messageStore) CountByTicket(ctx context.Context, ticketID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, msg := range m.s.messages {
		if msg.TicketID == ticketID {
			n++
		}
	}
	return n, nil
}

type processStore struct{ s *memStore }

func (p processStore) GetByID(ctx context.Context, id string) (model.LegalProcess, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, proc := range p.s.processes {
		if proc.ID == id {
			return proc, nil
		}
	}
	return model.LegalProcess{}, storage.ErrNotFound
}

func (p processStore) ListTimeline(ctx context.Context, processID string) ([]model.TimelineEntry, error) {
	return nil, nil
}

func (p processStore) LinkMessage(ctx context.Context, entry model.TimelineEntry, messageID, ticketID string) (model.TimelineEntry, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	// Mesma semântica da transação real: os três efeitos juntos.
	now := entry.CreatedAt
	for i := range p.s.messages {
		if p.s.messages[i].ID == messageID {
			p.s.messages[i].ReadAt = &now
		}
	}
	for i := range p.s.tickets {
		if p.s.tickets[i].ID == ticketID {
			p.s.tickets[i].Status = model.TicketStatusInProgress
		}
	}
	p.s.entries = append(p.s.entries, entry)
	return entry, nil
}

func newTestEngine(store *memStore) *Engine {
	return NewEngine(store, ticketStore{store}, messageStore{store}, processStore{store}, zap.NewNop())
}

func testConn() model.Connection {
	return model.Connection{
		ID:       "conn-1",
		TenantID: "tenant-1",
		Channel:  model.ChannelWhatsApp,
		Enabled:  true,
	}
}

func TestUnknownSenderGetsAIHandoffWithoutPersistence(t *testing.T) {
	store := &memStore{}
	engine := newTestEngine(store)

	result, err := engine.Triage(context.Background(), testConn(), inbound.Message{
		Phone:   "5531999990000",
		Content: "Olá",
	})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	if result.Action != ActionAIHandoff {
		t.Errorf("action = %s, esperava AI_HANDOFF", result.Action)
	}
	if result.Context != ContextNewLead {
		t.Errorf("context = %s, esperava NEW_LEAD", result.Context)
	}
	if result.Reply == "" {
		t.Error("resposta de onboarding vazia")
	}
	if len(store.tickets) != 0 || len(store.messages) != 0 || len(store.contacts) != 0 {
		t.Errorf("remetente desconhecido não pode persistir nada: %d tickets, %d mensagens",
			len(store.tickets), len(store.messages))
	}
}

func TestKnownContactWithoutActiveTicketOpensOne(t *testing.T) {
	store := &memStore{
		contacts: []model.Contact{{ID: "contact-1", TenantID: "tenant-1", Name: "Maria Silva", Phone: "5531999990000"}},
		tickets: []model.Ticket{{
			ID: "ticket-old", TenantID: "tenant-1", ContactID: "contact-1",
			Status: model.TicketStatusResolved,
		}},
	}
	engine := newTestEngine(store)

	result, err := engine.Triage(context.Background(), testConn(), inbound.Message{
		Phone:   "5531999990000",
		Content: "Olá",
	})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	if result.Action != ActionNotifyAgent {
		t.Fatalf("action = %s, esperava NOTIFY_AGENT", result.Action)
	}
	if result.Contact != "Maria Silva" {
		t.Errorf("contact = %q", result.Contact)
	}
	if result.Suggestion != "Saudação Padrão" {
		t.Errorf("suggestion = %q, esperava Saudação Padrão", result.Suggestion)
	}

	if len(store.tickets) != 2 {
		t.Fatalf("esperava novo ticket, total = %d", len(store.tickets))
	}
	opened := store.tickets[1]
	if opened.Status != model.TicketStatusOpen {
		t.Errorf("status do novo ticket = %s, esperava open", opened.Status)
	}
	if opened.Priority != model.TicketPriorityMedium {
		t.Errorf("prioridade = %s, esperava medium", opened.Priority)
	}
	if opened.Channel != model.ChannelWhatsApp {
		t.Errorf("canal = %s, esperava whatsapp", opened.Channel)
	}
	if result.TicketID != opened.ID {
		t.Errorf("TicketID do resultado = %s, ticket criado = %s", result.TicketID, opened.ID)
	}

	if len(store.messages) != 1 {
		t.Fatalf("esperava 1 mensagem, total = %d", len(store.messages))
	}
	msg := store.messages[0]
	if msg.SenderType != model.SenderContact || msg.ContentType != model.ContentText {
		t.Errorf("mensagem registrada incorretamente: %+v", msg)
	}
	if msg.ReadAt != nil {
		t.Error("mensagem recém-registrada não pode nascer lida")
	}
}

func TestActiveTicketIsReusedWithReturningClientHint(t *testing.T) {
	store := &memStore{
		contacts: []model.Contact{{ID: "contact-1", TenantID: "tenant-1", Name: "Maria Silva", Phone: "5531999990000"}},
		tickets: []model.Ticket{{
			ID: "ticket-1", TenantID: "tenant-1", ContactID: "contact-1",
			Status: model.TicketStatusOpen,
		}},
		messages: []model.TicketMessage{{
			ID: "msg-1", TicketID: "ticket-1", SenderType: model.SenderContact,
			Content: "Quero revisar meu contrato de aluguel",
		}},
	}
	engine := newTestEngine(store)

	result, err := engine.Triage(context.Background(), testConn(), inbound.Message{
		Phone:   "5531999990000",
		Content: "Alguma novidade?",
	})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	if result.TicketID != "ticket-1" {
		t.Errorf("ticket reutilizado = %s, esperava ticket-1", result.TicketID)
	}
	if len(store.tickets) != 1 {
		t.Errorf("não deveria abrir novo ticket, total = %d", len(store.tickets))
	}
	want := "Cliente recorrente, último assunto: Quero revisar meu contrato de aluguel"
	if result.Suggestion != want {
		t.Errorf("suggestion = %q, esperava %q", result.Suggestion, want)
	}
}

func TestWaitingTicketReactivatesOnNewMessage(t *testing.T) {
	store := &memStore{
		contacts: []model.Contact{{ID: "contact-1", TenantID: "tenant-1", Name: "Maria Silva", Phone: "5531999990000"}},
		tickets: []model.Ticket{{
			ID: "ticket-1", TenantID: "tenant-1", ContactID: "contact-1",
			Status: model.TicketStatusWaiting,
		}},
	}
	engine := newTestEngine(store)

	if _, err := engine.Triage(context.Background(), testConn(), inbound.Message{
		Phone:   "5531999990000",
		Content: "Segue o documento",
	}); err != nil {
		t.Fatalf("Triage: %v", err)
	}

	if store.tickets[0].Status != model.TicketStatusInProgress {
		t.Errorf("ticket em waiting deveria voltar a in_progress, está %s", store.tickets[0].Status)
	}
}

func TestMediaMessageIsRecordedAsFile(t *testing.T) {
	store := &memStore{
		contacts: []model.Contact{{ID: "contact-1", TenantID: "tenant-1", Name: "Maria Silva", Phone: "5531999990000"}},
	}
	engine := newTestEngine(store)

	if _, err := engine.Triage(context.Background(), testConn(), inbound.Message{
		Phone:    "5531999990000",
		Content:  "procuracao.pdf",
		MediaURL: "http://api.local/api/media/conn-1/abc.pdf",
	}); err != nil {
		t.Fatalf("Triage: %v", err)
	}

	if store.messages[0].ContentType != model.ContentFile {
		t.Errorf("contentType = %s, esperava file", store.messages[0].ContentType)
	}
}

func TestLongPreviousTopicIsTruncatedInHint(t *testing.T) {
	long := strings.Repeat("a", 300)
	store := &memStore{
		contacts: []model.Contact{{ID: "contact-1", TenantID: "tenant-1", Name: "Maria Silva", Phone: "5531999990000"}},
		tickets: []model.Ticket{{
			ID: "ticket-1", TenantID: "tenant-1", ContactID: "contact-1",
			Status: model.TicketStatusOpen,
		}},
		messages: []model.TicketMessage{{
			ID: "msg-1", TicketID: "ticket-1", SenderType: model.SenderContact, Content: long,
		}},
	}
	engine := newTestEngine(store)

	result, err := engine.Triage(context.Background(), testConn(), inbound.Message{
		Phone: "5531999990000", Content: "oi",
	})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if len(result.Suggestion) >= len(long) {
		t.Errorf("sugestão não foi truncada: %d bytes", len(result.Suggestion))
	}
}

func linkFixture() *memStore {
	return &memStore{
		contacts: []model.Contact{{ID: "contact-1", TenantID: "tenant-1", Name: "Maria Silva", Phone: "5531999990000"}},
		tickets: []model.Ticket{{
			ID: "ticket-1", TenantID: "tenant-1", ContactID: "contact-1",
			Status: model.TicketStatusOpen, Channel: model.ChannelWhatsApp,
		}},
		messages: []model.TicketMessage{
			{ID: "msg-text", TicketID: "ticket-1", SenderType: model.SenderContact, Content: "Segue minha dúvida"},
			{ID: "msg-media", TicketID: "ticket-1", SenderType: model.SenderContact, Content: "procuracao.pdf",
				MediaURL: "http://api.local/api/media/conn-1/abc.pdf", ContentType: model.ContentFile},
		},
		processes: []model.LegalProcess{{ID: "proc-1", TenantID: "tenant-1", Number: "0001234-56.2026.8.13.0024"}},
	}
}

func TestLinkToProcessTextMessage(t *testing.T) {
	store := linkFixture()
	engine := newTestEngine(store)

	entry, err := engine.LinkToProcess(context.Background(), "tenant-1", "msg-text", "proc-1")
	if err != nil {
		t.Fatalf("LinkToProcess: %v", err)
	}

	if entry.Type != model.TimelineEntryMessage {
		t.Errorf("type = %s, esperava message", entry.Type)
	}
	if entry.Description != "Segue minha dúvida" {
		t.Errorf("description = %q", entry.Description)
	}
	if entry.Metadata.OriginalMessageID != "msg-text" || entry.Metadata.TicketID != "ticket-1" {
		t.Errorf("metadata incompleta: %+v", entry.Metadata)
	}
	if entry.Metadata.Source != "whatsapp" {
		t.Errorf("source = %q, esperava whatsapp", entry.Metadata.Source)
	}

	if store.messages[0].ReadAt == nil {
		t.Error("mensagem vinculada deveria estar marcada como lida")
	}
	if store.tickets[0].Status != model.TicketStatusInProgress {
		t.Errorf("ticket deveria avançar para in_progress, está %s", store.tickets[0].Status)
	}
}

func TestLinkToProcessMediaMessageCreatesFileEntry(t *testing.T) {
	store := linkFixture()
	engine := newTestEngine(store)

	entry, err := engine.LinkToProcess(context.Background(), "tenant-1", "msg-media", "proc-1")
	if err != nil {
		t.Fatalf("LinkToProcess: %v", err)
	}
	if entry.Type != model.TimelineEntryFile {
		t.Errorf("type = %s, esperava file", entry.Type)
	}
	if entry.Metadata.MediaURL == "" {
		t.Error("metadata deveria carregar a URL da mídia")
	}
}

func TestLinkToProcessMissingMessage(t *testing.T) {
	store := linkFixture()
	engine := newTestEngine(store)

	_, err := engine.LinkToProcess(context.Background(), "tenant-1", "nao-existe", "proc-1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, esperava ErrNotFound", err)
	}
	if len(store.entries) != 0 {
		t.Error("nenhuma entrada de linha do tempo deveria ser criada")
	}
}

func TestLinkToProcessEnforcesTenantIsolation(t *testing.T) {
	store := linkFixture()
	engine := newTestEngine(store)

	if _, err := engine.LinkToProcess(context.Background(), "tenant-2", "msg-text", "proc-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("tenant alheio = %v, esperava ErrNotFound", err)
	}
	if len(store.entries) != 0 {
		t.Error("vínculo entre tenants não pode criar entrada")
	}
}
