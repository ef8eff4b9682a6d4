package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type ticketMessageRepo struct {
	db *DB
}

func NewTicketMessageRepository(db *DB) *ticketMessageRepo {
	return &ticketMessageRepo{db: db}
}

const messageColumns = `id, ticket_id, sender_type, COALESCE(sender_id, ''), content, content_type, COALESCE(media_url, ''), read_at, created_at`

func (r *ticketMessageRepo) Create(ctx context.Context, msg model.TicketMessage) (model.TicketMessage, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var readAt *string
	if msg.ReadAt != nil {
		v := msg.ReadAt.Format(time.RFC3339)
		readAt = &v
	}

	query := `
		INSERT INTO ticket_messages (id, ticket_id, sender_type, sender_id, content, content_type, media_url, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Conn.ExecContext(ctx, query,
		msg.ID, msg.TicketID, string(msg.SenderType), nullIfEmpty(msg.SenderID),
		msg.Content, string(msg.ContentType), nullIfEmpty(msg.MediaURL),
		readAt, msg.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.TicketMessage{}, err
	}
	return msg, nil
}

func (r *ticketMessageRepo) GetByID(ctx context.Context, id string) (model.TicketMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM ticket_messages WHERE id = ?`

	msg, err := scanMessage(r.db.Conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return model.TicketMessage{}, mapError(err)
	}
	return msg, nil
}

func (r *ticketMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]model.TicketMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM ticket_messages WHERE ticket_id = ? ORDER BY created_at`

	rows, err := r.db.Conn.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TicketMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *ticketMessageRepo) LastContactMessage(ctx context.Context, ticketID, beforeID string) (model.TicketMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM ticket_messages
		WHERE ticket_id = ?
		  AND sender_type = 'contact'
		  AND id <> ?
		  AND created_at <= (SELECT created_at FROM ticket_messages WHERE id = ?)
		ORDER BY created_at DESC
		LIMIT 1
	`

	msg, err := scanMessage(r.db.Conn.QueryRowContext(ctx, query, ticketID, beforeID, beforeID))
	if err != nil {
		return model.TicketMessage{}, mapError(err)
	}
	return msg, nil
}

func (r *ticketMessageRepo) CountByTicket(ctx context.Context, ticketID string) (int64, error) {
	var count int64
	err := r.db.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticket_messages WHERE ticket_id = ?`, ticketID).Scan(&count)
	return count, err
}

func scanMessage(row rowScanner) (model.TicketMessage, error) {
	var msg model.TicketMessage
	var createdAt string
	var readAt sql.NullString

	err := row.Scan(
		&msg.ID, &msg.TicketID, &msg.SenderType, &msg.SenderID,
		&msg.Content, &msg.ContentType, &msg.MediaURL, &readAt, &createdAt,
	)
	if err != nil {
		return model.TicketMessage{}, err
	}

	msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if readAt.Valid {
		msg.ReadAt = parseTimePtr(readAt.String)
	}
	return msg, nil
}
