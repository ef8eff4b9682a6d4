package postgres

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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		conn.ID, conn.TenantID, conn.Name, string(conn.Channel), string(conn.Status),
		nullIfEmpty(conn.QRCode), nullIfEmpty(conn.WhatsAppJID),
		nullIfEmpty(conn.WebhookURL), nullIfEmpty(conn.WebhookSecret),
		conn.Enabled, conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		return model.Connection{}, err
	}
	return conn, nil
}

func (r *connectionRepo) GetByID(ctx context.Context, id string) (model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	var conn model.Connection
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&conn.ID, &conn.TenantID, &conn.Name, &conn.Channel, &conn.Status,
		&conn.QRCode, &conn.WhatsAppJID, &conn.WebhookURL, &conn.WebhookSecret,
		&conn.Enabled, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return model.Connection{}, mapError(err)
	}
	return conn, nil
}

func (r *connectionRepo) List(ctx context.Context) ([]model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConnections(rows)
}

func (r *connectionRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE tenant_id = $1 ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConnections(rows)
}

func (r *connectionRepo) Update(ctx context.Context, conn model.Connection) (model.Connection, error) {
	conn.UpdatedAt = time.Now()

	query := `
		UPDATE connections
		SET name = $2, status = $3, qr_code = $4, whatsapp_jid = $5, webhook_url = $6, webhook_secret = $7, enabled = $8, updated_at = $9
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		conn.ID, conn.Name, string(conn.Status),
		nullIfEmpty(conn.QRCode), nullIfEmpty(conn.WhatsAppJID),
		nullIfEmpty(conn.WebhookURL), nullIfEmpty(conn.WebhookSecret),
		conn.Enabled, conn.UpdatedAt,
	)
	if err != nil {
		return model.Connection{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Connection{}, storage.ErrNotFound
	}
	return conn, nil
}

func (r *connectionRepo) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus, qrCode string) error {
	query := `UPDATE connections SET status = $2, qr_code = $3, updated_at = $4 WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id, string(status), nullIfEmpty(qrCode), time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *connectionRepo) Disable(ctx context.Context, id string) error {
	query := `UPDATE connections SET enabled = FALSE, updated_at = $2 WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanConnections(rows rowsScanner) ([]model.Connection, error) {
	var out []model.Connection
	for rows.Next() {
		var conn model.Connection
		if err := rows.Scan(
			&conn.ID, &conn.TenantID, &conn.Name, &conn.Channel, &conn.Status,
			&conn.QRCode, &conn.WhatsAppJID, &conn.WebhookURL, &conn.WebhookSecret,
			&conn.Enabled, &conn.CreatedAt, &conn.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
