package implementation

import (
	"context"
	"errors"
	"fmt"

	"care-connect-be/internal/pkg/apperror"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// mapError converts gorm/pgx errors into the apperror taxonomy so callers never
// see driver types.
func mapError(err error, entity string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", entity, apperror.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", entity, err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", entity, apperror.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", entity, apperror.ErrAlreadyExists)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", entity, apperror.ErrNotFound)
		case "23514": // check_violation
			return fmt.Errorf("%s: %w", entity, apperror.ErrValidation)
		case "57014": // query_canceled, raised by statement_timeout
			return fmt.Errorf("%s: %w", entity, apperror.ErrTimeout)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", entity, apperror.ErrAlreadyExists)
	}

	return fmt.Errorf("%s: %w: %v", entity, apperror.ErrStorage, err)
}
