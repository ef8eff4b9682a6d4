package postgres

import (
	"context"
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

	query := `
		INSERT INTO ticket_messages (id, ticket_id, sender_type, sender_id, content, content_type, media_url, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		msg.ID, msg.TicketID, string(msg.SenderType), nullIfEmpty(msg.SenderID),
		msg.Content, string(msg.ContentType), nullIfEmpty(msg.MediaURL),
		msg.ReadAt, msg.CreatedAt,
	)
	if err != nil {
		return model.TicketMessage{}, err
	}
	return msg, nil
}

func (r *ticketMessageRepo) GetByID(ctx context.Context, id string) (model.TicketMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM ticket_messages WHERE id = $1`

	var msg model.TicketMessage
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.TicketID, &msg.SenderType, &msg.SenderID,
		&msg.Content, &msg.ContentType, &msg.MediaURL, &msg.ReadAt, &msg.CreatedAt,
	)
	if err != nil {
		return model.TicketMessage{}, mapError(err)
	}
	return msg, nil
}

func (r *ticketMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]model.TicketMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM ticket_messages WHERE ticket_id = $1 ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TicketMessage
	for rows.Next() {
		var msg model.TicketMessage
		if err := rows.Scan(
			&msg.ID, &msg.TicketID, &msg.SenderType, &msg.SenderID,
			&msg.Content, &msg.ContentType, &msg.MediaURL, &msg.ReadAt, &msg.CreatedAt,
		); err != nil {
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
		WHERE ticket_id = $1
		  AND sender_type = 'contact'
		  AND id <> $2
		  AND created_at <= (SELECT created_at FROM ticket_messages WHERE id = $2)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var msg model.TicketMessage
	err := r.db.Pool.QueryRow(ctx, query, ticketID, beforeID).Scan(
		&msg.ID, &msg.TicketID, &msg.SenderType, &msg.SenderID,
		&msg.Content, &msg.ContentType, &msg.MediaURL, &msg.ReadAt, &msg.CreatedAt,
	)
	if err != nil {
		return model.TicketMessage{}, mapError(err)
	}
	return msg, nil
}

func (r *ticketMessageRepo) CountByTicket(ctx context.Context, ticketID string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM ticket_messages WHERE ticket_id = $1`, ticketID).Scan(&count)
	return count, err
}
