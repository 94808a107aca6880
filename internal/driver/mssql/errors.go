package mssql

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

// classify maps a SQL Server error onto a typed kind. unavailable is the
// kind used for connectivity loss (source vs destination side).
func classify(err error, unavailable error) error {
	if err == nil {
		return nil
	}

	var sqlErr mssqldb.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case 1205: // deadlock victim
			return syncerr.Wrap(syncerr.ErrWriteConflict, err)
		case 207, // invalid column name
			208,  // invalid object name
			4902: // table not found (ALTER)
			return syncerr.Wrap(syncerr.ErrSchemaMismatch, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return syncerr.Wrap(unavailable, err)
	}
	return err
}
