package postgres

import (
	"context"
	"time"

	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type ticketRepo struct {
	db *DB
}

func NewTicketRepository(db *DB) *ticketRepo {
	return &ticketRepo{db: db}
}

const ticketColumns = `id, tenant_id, contact_id, connection_id, status, priority, channel, created_at, updated_at, closed_at`

func (r *ticketRepo) Create(ctx context.Context, ticket model.Ticket) (model.Ticket, error) {
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	query := `
		INSERT INTO tickets (id, tenant_id, contact_id, connection_id, status, priority, channel, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		ticket.ID, ticket.TenantID, ticket.ContactID, ticket.ConnectionID,
		string(ticket.Status), string(ticket.Priority), string(ticket.Channel),
		ticket.CreatedAt, ticket.UpdatedAt,
	)
	if err != nil {
		return model.Ticket{}, err
	}
	return ticket, nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	var ticket model.Ticket
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID, &ticket.TenantID, &ticket.ContactID, &ticket.ConnectionID,
		&ticket.Status, &ticket.Priority, &ticket.Channel,
		&ticket.CreatedAt, &ticket.UpdatedAt, &ticket.ClosedAt,
	)
	if err != nil {
		return model.Ticket{}, mapError(err)
	}
	return ticket, nil
}

func (r *ticketRepo) GetActiveByContact(ctx context.Context, tenantID, contactID string) (model.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE tenant_id = $1 AND contact_id = $2 AND status IN ('open', 'in_progress', 'waiting')
		ORDER BY created_at DESC
		LIMIT 1
	`

	var ticket model.Ticket
	err := r.db.Pool.QueryRow(ctx, query, tenantID, contactID).Scan(
		&ticket.ID, &ticket.TenantID, &ticket.ContactID, &ticket.ConnectionID,
		&ticket.Status, &ticket.Priority, &ticket.Channel,
		&ticket.CreatedAt, &ticket.UpdatedAt, &ticket.ClosedAt,
	)
	if err != nil {
		return model.Ticket{}, mapError(err)
	}
	return ticket, nil
}

func (r *ticketRepo) ListByTenant(ctx context.Context, tenantID string, statuses []model.TicketStatus) ([]model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id = $1`
	args := []any{tenantID}

	if len(statuses) > 0 {
		filter := make([]string, 0, len(statuses))
		for _, s := range statuses {
			filter = append(filter, string(s))
		}
		query += ` AND status = ANY($2)`
		args = append(args, filter)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		var ticket model.Ticket
		if err := rows.Scan(
			&ticket.ID, &ticket.TenantID, &ticket.ContactID, &ticket.ConnectionID,
			&ticket.Status, &ticket.Priority, &ticket.Channel,
			&ticket.CreatedAt, &ticket.UpdatedAt, &ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ticket)
	}
	return out, rows.Err()
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id string, status model.TicketStatus) error {
	query := `
		UPDATE tickets
		SET status = $2,
		    updated_at = $3,
		    closed_at = CASE WHEN $2 IN ('resolved', 'closed') THEN $3 ELSE NULL END
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, string(status), time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
