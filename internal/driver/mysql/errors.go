package mysql

import (
	"errors"
	"io"
	"net"

	sqldriver "database/sql/driver"

	"github.com/go-sql-driver/mysql"

	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

// MySQL server error numbers that map onto typed error kinds.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errBadDB           = 1049
	errUnknownColumn   = 1054
	errNoSuchTable     = 1146
)

// classify maps a MySQL error onto a typed kind. unavailable is the kind
// used for connectivity loss (source vs destination side).
func classify(err error, unavailable error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockWaitTimeout, errDeadlock:
			return syncerr.Wrap(syncerr.ErrWriteConflict, err)
		case errUnknownColumn, errNoSuchTable, errBadDB:
			return syncerr.Wrap(syncerr.ErrSchemaMismatch, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, sqldriver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return syncerr.Wrap(unavailable, err)
	}
	return err
}
