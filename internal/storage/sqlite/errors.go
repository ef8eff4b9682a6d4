package sqlite

import (
	"database/sql"
	"errors"

	"github.com/jurisdesk/atendimento/internal/storage"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
