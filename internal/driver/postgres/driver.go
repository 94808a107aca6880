// Package postgres implements the PostgreSQL driver using pgx.
package postgres

import (
	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for PostgreSQL.
type Driver struct{}

func (d *Driver) Name() string {
	return "postgres"
}

func (d *Driver) Aliases() []string {
	return []string{"postgresql", "pg"}
}

func (d *Driver) DefaultPort() int {
	return 5432
}

func (d *Driver) NewReader(cfg *dbconfig.ConnConfig, maxConns int) (driver.Reader, error) {
	return NewReader(cfg, maxConns)
}

func (d *Driver) NewWriter(cfg *dbconfig.ConnConfig, maxConns int, opts driver.WriterOptions) (driver.Writer, error) {
	return NewWriter(cfg, maxConns, opts)
}
