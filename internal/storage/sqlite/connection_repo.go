package sqlite

import (
	"context"
	"time"

	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type connectionRepo struct {
	db *DB
}

func NewConnectionRepository(db *DB) *connectionRepo {
	return &connectionRepo{db: db}
}

const connectionColumns = `id, tenant_id, name, channel, status, COALESCE(qr_code, ''), COALESCE(whatsapp_jid, ''), COALESCE(webhook_url, ''), COALESCE(webhook_secret, ''), enabled, created_at, updated_at`

func (r *connectionRepo) Create(ctx context.Context, conn model.Connection) (model.Connection, error) {
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query := `
		INSERT INTO connections (id, tenant_id, name, channel, status, qr_code, whatsapp_jid, webhook_url, webhook_secret, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Conn.ExecContext(ctx, query,
		conn.ID, conn.TenantID, conn.Name, string(conn.Channel), string(conn.Status),
		nullIfEmpty(conn.QRCode), nullIfEmpty(conn.WhatsAppJID),
		nullIfEmpty(conn.WebhookURL), nullIfEmpty(conn.WebhookSecret),
		conn.Enabled, conn.CreatedAt.Format(time.RFC3339), conn.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.Connection{}, err
	}
	return conn, nil
}

func (r *connectionRepo) GetByID(ctx context.Context, id string) (model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = ?`

	conn, err := scanConnection(r.db.Conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return model.Connection{}, mapError(err)
	}
	return conn, nil
}

func (r *connectionRepo) List(ctx context.Context) ([]model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections ORDER BY created_at`

	rows, err := r.db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

func (r *connectionRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE tenant_id = ? ORDER BY created_at`

	rows, err := r.db.Conn.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

func (r *connectionRepo) Update(ctx context.Context, conn model.Connection) (model.Connection, error) {
	conn.UpdatedAt = time.Now()

	query := `
		UPDATE connections
		SET name = ?, status = ?, qr_code = ?, whatsapp_jid = ?, webhook_url = ?, webhook_secret = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Conn.ExecContext(ctx, query,
		conn.Name, string(conn.Status),
		nullIfEmpty(conn.QRCode), nullIfEmpty(conn.WhatsAppJID),
		nullIfEmpty(conn.WebhookURL), nullIfEmpty(conn.WebhookSecret),
		conn.Enabled, conn.UpdatedAt.Format(time.RFC3339), conn.ID,
	)
	if err != nil {
		return model.Connection{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Connection{}, storage.ErrNotFound
	}
	return conn, nil
}

func (r *connectionRepo) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus, qrCode string) error {
	query := `UPDATE connections SET status = ?, qr_code = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.Conn.ExecContext(ctx, query, string(status), nullIfEmpty(qrCode), time.Now().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *connectionRepo) Disable(ctx context.Context, id string) error {
	query := `UPDATE connections SET enabled = 0, updated_at = ? WHERE id = ?`

	res, err := r.db.Conn.ExecContext(ctx, query, time.Now().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (model.Connection, error) {
	var conn model.Connection
	var createdAt, updatedAt string

	err := row.Scan(
		&conn.ID, &conn.TenantID, &conn.Name, &conn.Channel, &conn.Status,
		&conn.QRCode, &conn.WhatsAppJID, &conn.WebhookURL, &conn.WebhookSecret,
		&conn.Enabled, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Connection{}, err
	}

	conn.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	conn.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return conn, nil
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func parseTimePtr(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
