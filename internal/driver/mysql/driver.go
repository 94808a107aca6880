// Package mysql implements the MySQL/MariaDB driver.
package mysql

import (
	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for MySQL/MariaDB.
type Driver struct{}

func (d *Driver) Name() string {
	return "mysql"
}

func (d *Driver) Aliases() []string {
	return []string{"mariadb"}
}

func (d *Driver) DefaultPort() int {
	return 3306
}

func (d *Driver) NewReader(cfg *dbconfig.ConnConfig, maxConns int) (driver.Reader, error) {
	return NewReader(cfg, maxConns)
}

func (d *Driver) NewWriter(cfg *dbconfig.ConnConfig, maxConns int, opts driver.WriterOptions) (driver.Writer, error) {
	return NewWriter(cfg, maxConns, opts)
}
