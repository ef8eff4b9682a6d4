package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jurisdesk/atendimento/internal/storage"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
