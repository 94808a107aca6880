package postgres

import (
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

// classify maps a PostgreSQL error onto a typed kind. unavailable is the
// kind used for connectivity loss (source vs destination side).
func classify(err error, unavailable error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return syncerr.Wrap(syncerr.ErrWriteConflict, err)
		case "42P01", // undefined_table
			"42703": // undefined_column
			return syncerr.Wrap(syncerr.ErrSchemaMismatch, err)
		}
		return err
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.As(err, &netErr) || errors.As(err, &connectErr) {
		return syncerr.Wrap(unavailable, err)
	}
	return err
}
