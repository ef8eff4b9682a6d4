package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type processRepo struct {
	db *DB
}

func NewProcessRepository(db *DB) *processRepo {
	return &processRepo{db: db}
}

func (r *processRepo) GetByID(ctx context.Context, id string) (model.LegalProcess, error) {
	query := `SELECT id, tenant_id, number, COALESCE(title, ''), created_at FROM legal_processes WHERE id = ?`

	var proc model.LegalProcess
	var createdAt string
	err := r.db.Conn.QueryRowContext(ctx, query, id).Scan(
		&proc.ID, &proc.TenantID, &proc.Number, &proc.Title, &createdAt,
	)
	if err != nil {
		return model.LegalProcess{}, mapError(err)
	}

	proc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return proc, nil
}

func (r *processRepo) ListTimeline(ctx context.Context, processID string) ([]model.TimelineEntry, error) {
	query := `
		SELECT id, process_id, entry_type, COALESCE(description, ''), metadata, created_at
		FROM process_timeline
		WHERE process_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.Conn.QueryContext(ctx, query, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimelineEntry
	for rows.Next() {
		var entry model.TimelineEntry
		var metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.ProcessID, &entry.Type, &entry.Description, &metadata, &createdAt); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("metadata da entrada %s inválido: %w", entry.ID, err)
			}
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *processRepo) LinkMessage(ctx context.Context, entry model.TimelineEntry, messageID, ticketID string) (model.TimelineEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return model.TimelineEntry{}, fmt.Errorf("erro ao serializar metadata: %w", err)
	}

	tx, err := r.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return model.TimelineEntry{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO process_timeline (id, process_id, entry_type, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.ProcessID, string(entry.Type), nullIfEmpty(entry.Description), string(metadata), entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return model.TimelineEntry{}, err
	}

	now := time.Now().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `UPDATE ticket_messages SET read_at = ? WHERE id = ? AND read_at IS NULL`, now, messageID); err != nil {
		return model.TimelineEntry{}, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE tickets SET status = 'in_progress', updated_at = ? WHERE id = ?`, now, ticketID)
	if err != nil {
		return model.TimelineEntry{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.TimelineEntry{}, storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return model.TimelineEntry{}, err
	}
	return entry, nil
}
