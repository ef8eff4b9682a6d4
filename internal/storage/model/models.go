package model

import "time"

// ConnectionStatus representa o ciclo de vida de uma conexão de canal.
type ConnectionStatus string

const (
	ConnectionStatusDisconnected    ConnectionStatus = "disconnected"
	ConnectionStatusConnecting      ConnectionStatus = "connecting"
	ConnectionStatusAwaitingPairing ConnectionStatus = "awaiting_pairing"
	ConnectionStatusConnected       ConnectionStatus = "connected"
	ConnectionStatusReconnecting    ConnectionStatus = "reconnecting"
)

// ConnectionChannel identifica o tipo de canal da conexão.
type ConnectionChannel string

const (
	ChannelWhatsApp ConnectionChannel = "whatsapp"
)

// Connection é um canal de comunicação configurado por um tenant.
// Nunca é apagada enquanto referenciada por tickets; é desabilitada
// via Enabled=false.
type Connection struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenantId"`
	Name          string            `json:"name"`
	Channel       ConnectionChannel `json:"channel"`
	Status        ConnectionStatus  `json:"status"`
	QRCode        string            `json:"qrCode,omitempty"`
	WhatsAppJID   string            `json:"whatsappJid,omitempty"`
	WebhookURL    string            `json:"webhookUrl,omitempty"`
	WebhookSecret string            `json:"-"`
	Enabled       bool              `json:"enabled"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Contact é uma pessoa ou organização atendida pelo escritório.
// A resolução de remetentes usa igualdade exata do campo Phone
// dentro do tenant.
type Contact struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusWaiting    TicketStatus = "waiting"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Active informa se o ticket ainda absorve novas mensagens do contato.
func (s TicketStatus) Active() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusWaiting:
		return true
	}
	return false
}

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Ticket é a unidade de trabalho de atendimento: uma conversa com um
// contato. No máximo um ticket ativo por contato é reutilizado pela
// triagem.
type Ticket struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenantId"`
	ContactID    string            `json:"contactId"`
	ConnectionID string            `json:"connectionId"`
	Status       TicketStatus      `json:"status"`
	Priority     TicketPriority    `json:"priority"`
	Channel      ConnectionChannel `json:"channel"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	ClosedAt     *time.Time        `json:"closedAt,omitempty"`
}

type SenderType string

const (
	SenderContact SenderType = "contact"
	SenderUser    SenderType = "user"
	SenderSystem  SenderType = "system"
)

type ContentType string

const (
	ContentText ContentType = "text"
	ContentFile ContentType = "file"
)

// TicketMessage é uma mensagem de um ticket. O conteúdo é imutável
// após a criação; apenas ReadAt pode ser atualizado.
type TicketMessage struct {
	ID          string      `json:"id"`
	TicketID    string      `json:"ticketId"`
	SenderType  SenderType  `json:"senderType"`
	SenderID    string      `json:"senderId,omitempty"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	MediaURL    string      `json:"mediaUrl,omitempty"`
	ReadAt      *time.Time  `json:"readAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// LegalProcess é o registro mínimo de um processo jurídico usado
// pela vinculação de mensagens à linha do tempo. O restante do
// cadastro processual pertence a outro serviço.
type LegalProcess struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Number    string    `json:"number"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type TimelineEntryType string

const (
	TimelineEntryMessage TimelineEntryType = "message"
	TimelineEntryFile    TimelineEntryType = "file"
)

// TimelineEntry é um evento anexado à linha do tempo de um processo.
type TimelineEntry struct {
	ID          string            `json:"id"`
	ProcessID   string            `json:"processId"`
	Type        TimelineEntryType `json:"type"`
	Description string            `json:"description"`
	Metadata    TimelineMetadata  `json:"metadata"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// TimelineMetadata guarda a origem de uma entrada criada a partir de
// uma mensagem de ticket.
type TimelineMetadata struct {
	OriginalMessageID string `json:"originalMessageId,omitempty"`
	TicketID          string `json:"ticketId,omitempty"`
	Source            string `json:"source,omitempty"`
	MediaURL          string `json:"mediaUrl,omitempty"`
}
