package postgres

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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		contact.ID, contact.TenantID, contact.Name, contact.Phone,
		nullIfEmpty(contact.Email), contact.CreatedAt, contact.UpdatedAt,
	)
	if err != nil {
		return model.Contact{}, err
	}
	return contact, nil
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`

	var contact model.Contact
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&contact.ID, &contact.TenantID, &contact.Name, &contact.Phone,
		&contact.Email, &contact.CreatedAt, &contact.UpdatedAt,
	)
	if err != nil {
		return model.Contact{}, mapError(err)
	}
	return contact, nil
}

func (r *contactRepo) GetByPhone(ctx context.Context, tenantID, phone string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND phone = $2`

	var contact model.Contact
	err := r.db.Pool.QueryRow(ctx, query, tenantID, phone).Scan(
		&contact.ID, &contact.TenantID, &contact.Name, &contact.Phone,
		&contact.Email, &contact.CreatedAt, &contact.UpdatedAt,
	)
	if err != nil {
		return model.Contact{}, mapError(err)
	}
	return contact, nil
}

func (r *contactRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var contact model.Contact
		if err := rows.Scan(
			&contact.ID, &contact.TenantID, &contact.Name, &contact.Phone,
			&contact.Email, &contact.CreatedAt, &contact.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, contact)
	}
	return out, rows.Err()
}

func (r *contactRepo) Update(ctx context.Context, contact model.Contact) (model.Contact, error) {
	contact.UpdatedAt = time.Now()

	query := `
		UPDATE contacts SET name = $2, phone = $3, email = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		contact.ID, contact.Name, contact.Phone, nullIfEmpty(contact.Email), contact.UpdatedAt,
	)
	if err != nil {
		return model.Contact{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Contact{}, storage.ErrNotFound
	}
	return contact, nil
}
