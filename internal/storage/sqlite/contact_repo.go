package sqlite

import (
	"context"
	"time"

	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type contactRepo struct {
	db *DB
}

func NewContactRepository(db *DB) *contactRepo {
	return &contactRepo{db: db}
}

const contactColumns = `id, tenant_id, name, phone, COALESCE(email, ''), created_at, updated_at`

func (r *contactRepo) Create(ctx context.Context, contact model.Contact) (model.Contact, error) {
	now := time.Now()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	query := `
		INSERT INTO contacts (id, tenant_id, name, phone, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Conn.ExecContext(ctx, query,
		contact.ID, contact.TenantID, contact.Name, contact.Phone,
		nullIfEmpty(contact.Email), contact.CreatedAt.Format(time.RFC3339), contact.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.Contact{}, err
	}
	return contact, nil
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ?`

	contact, err := scanContact(r.db.Conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return model.Contact{}, mapError(err)
	}
	return contact, nil
}

func (r *contactRepo) GetByPhone(ctx context.Context, tenantID, phone string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = ? AND phone = ?`

	contact, err := scanContact(r.db.Conn.QueryRowContext(ctx, query, tenantID, phone))
	if err != nil {
		return model.Contact{}, mapError(err)
	}
	return contact, nil
}

func (r *contactRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = ? ORDER BY name`

	rows, err := r.db.Conn.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, contact)
	}
	return out, rows.Err()
}

func (r *contactRepo) Update(ctx context.Context, contact model.Contact) (model.Contact, error) {
	contact.UpdatedAt = time.Now()

	query := `
		UPDATE contacts SET name = ?, phone = ?, email = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Conn.ExecContext(ctx, query,
		contact.Name, contact.Phone, nullIfEmpty(contact.Email),
		contact.UpdatedAt.Format(time.RFC3339), contact.ID,
	)
	if err != nil {
		return model.Contact{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Contact{}, storage.ErrNotFound
	}
	return contact, nil
}

func scanContact(row rowScanner) (model.Contact, error) {
	var contact model.Contact
	var createdAt, updatedAt string

	err := row.Scan(
		&contact.ID, &contact.TenantID, &contact.Name, &contact.Phone,
		&contact.Email, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Contact{}, err
	}

	contact.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	contact.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return contact, nil
}
