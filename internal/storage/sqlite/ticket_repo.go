package sqlite

import (
	"context"
	"database/sql"
	"strings"
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Conn.ExecContext(ctx, query,
		ticket.ID, ticket.TenantID, ticket.ContactID, ticket.ConnectionID,
		string(ticket.Status), string(ticket.Priority), string(ticket.Channel),
		ticket.CreatedAt.Format(time.RFC3339), ticket.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.Ticket{}, err
	}
	return ticket, nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`

	ticket, err := scanTicket(r.db.Conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return model.Ticket{}, mapError(err)
	}
	return ticket, nil
}

func (r *ticketRepo) GetActiveByContact(ctx context.Context, tenantID, contactID string) (model.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE tenant_id = ? AND contact_id = ? AND status IN ('open', 'in_progress', 'waiting')
		ORDER BY created_at DESC
		LIMIT 1
	`

	ticket, err := scanTicket(r.db.Conn.QueryRowContext(ctx, query, tenantID, contactID))
	if err != nil {
		return model.Ticket{}, mapError(err)
	}
	return ticket, nil
}

func (r *ticketRepo) ListByTenant(ctx context.Context, tenantID string, statuses []model.TicketStatus) ([]model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id = ?`
	args := []any{tenantID}

	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for _, s := range statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(s))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ticket)
	}
	return out, rows.Err()
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id string, status model.TicketStatus) error {
	query := `
		UPDATE tickets
		SET status = ?,
		    updated_at = ?,
		    closed_at = CASE WHEN ? IN ('resolved', 'closed') THEN ? ELSE NULL END
		WHERE id = ?
	`
	now := time.Now().Format(time.RFC3339)
	res, err := r.db.Conn.ExecContext(ctx, query, string(status), now, string(status), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanTicket(row rowScanner) (model.Ticket, error) {
	var ticket model.Ticket
	var createdAt, updatedAt string
	var closedAt sql.NullString

	err := row.Scan(
		&ticket.ID, &ticket.TenantID, &ticket.ContactID, &ticket.ConnectionID,
		&ticket.Status, &ticket.Priority, &ticket.Channel,
		&createdAt, &updatedAt, &closedAt,
	)
	if err != nil {
		return model.Ticket{}, err
	}

	ticket.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	ticket.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if closedAt.Valid {
		ticket.ClosedAt = parseTimePtr(closedAt.String)
	}
	return ticket, nil
}
