package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

// mapPostgresError maps PostgreSQL errors to domain sentinels. op names the
// failing operation.
func mapPostgresError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s: %s", domain.ErrConflict, op, pgErr.ConstraintName)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s: %s", domain.ErrNotFound, op, pgErr.Detail)
	case pgerrcode.UndefinedTable, pgerrcode.InvalidSchemaName:
		return fmt.Errorf("%w: %s", domain.ErrTenantNotProvisioned, op)
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("%s: transaction conflict (retryable): %w", op, err)
	case pgerrcode.QueryCanceled:
		return fmt.Errorf("%s: query canceled: %w", op, err)
	default:
		return fmt.Errorf("%s: postgres error [%s]: %s: %w", op, pgErr.Code, pgErr.Message, err)
	}
}
