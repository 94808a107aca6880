// Package mssql implements the Microsoft SQL Server driver.
package mssql

import (
	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQL Server.
type Driver struct{}

func (d *Driver) Name() string {
	return "mssql"
}

func (d *Driver) Aliases() []string {
	return []string{"sqlserver"}
}

func (d *Driver) DefaultPort() int {
	return 1433
}

func (d *Driver) NewReader(cfg *dbconfig.ConnConfig, maxConns int) (driver.Reader, error) {
	return NewReader(cfg, maxConns)
}

func (d *Driver) NewWriter(cfg *dbconfig.ConnConfig, maxConns int, opts driver.WriterOptions) (driver.Writer, error) {
	return NewWriter(cfg, maxConns, opts)
}
