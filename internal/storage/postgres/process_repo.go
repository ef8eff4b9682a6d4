package postgres

import (
	"context"
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
	query := `SELECT id, tenant_id, number, COALESCE(title, ''), created_at FROM legal_processes WHERE id = $1`

	var proc model.LegalProcess
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&proc.ID, &proc.TenantID, &proc.Number, &proc.Title, &proc.CreatedAt,
	)
	if err != nil {
		return model.LegalProcess{}, mapError(err)
	}
	return proc, nil
}

func (r *processRepo) ListTimeline(ctx context.Context, processID string) ([]model.TimelineEntry, error) {
	query := `
		SELECT id, process_id, entry_type, COALESCE(description, ''), metadata, created_at
		FROM process_timeline
		WHERE process_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimelineEntry
	for rows.Next() {
		var entry model.TimelineEntry
		var metadata []byte
		if err := rows.Scan(&entry.ID, &entry.ProcessID, &entry.Type, &entry.Description, &metadata, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("metadata da entrada %s inválido: %w", entry.ID, err)
			}
		}
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

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return model.TimelineEntry{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO process_timeline (id, process_id, entry_type, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.ProcessID, string(entry.Type), nullIfEmpty(entry.Description), metadata, entry.CreatedAt)
	if err != nil {
		return model.TimelineEntry{}, err
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `UPDATE ticket_messages SET read_at = $1 WHERE id = $2 AND read_at IS NULL`, now, messageID); err != nil {
		return model.TimelineEntry{}, err
	}

	tag, err := tx.Exec(ctx, `UPDATE tickets SET status = 'in_progress', updated_at = $1 WHERE id = $2`, now, ticketID)
	if err != nil {
		return model.TimelineEntry{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.TimelineEntry{}, storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return model.TimelineEntry{}, err
	}
	return entry, nil
}
