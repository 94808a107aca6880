// Package driver provides pluggable database driver abstractions.
// Each database (MySQL, PostgreSQL, MSSQL) implements the Driver interface
// to provide all database-specific functionality in one cohesive unit.
package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

// Driver represents a pluggable database driver.
//
// To add a new database:
// 1. Create a package under internal/driver/<dbname>/
// 2. Implement the Driver interface
// 3. Register via init(): driver.Register(&MyDriver{})
type Driver interface {
	// Name returns the primary driver name (e.g., "mysql", "postgres").
	Name() string

	// Aliases returns alternative names for this driver.
	Aliases() []string

	// DefaultPort returns the default port (e.g., 3306 for MySQL).
	DefaultPort() int

	// NewReader creates a source reader for this database type.
	NewReader(cfg *dbconfig.ConnConfig, maxConns int) (Reader, error)

	// NewWriter creates a destination writer for this database type.
	NewWriter(cfg *dbconfig.ConnConfig, maxConns int, opts WriterOptions) (Writer, error)
}

// Reader reads rows from a source table.
type Reader interface {
	// FetchFull returns a cursor over all current rows of the entity's
	// source table. Restartable: calling it again re-runs the query.
	// When the entity has a watermark column the rows are ordered by
	// (watermark column, primary key) ascending so the maximum watermark
	// observed is well-defined.
	FetchFull(ctx context.Context, e *Entity) (Cursor, error)

	// FetchChanged returns a cursor over rows whose watermark column is
	// strictly greater than since, ordered by (watermark column, primary
	// key) ascending.
	FetchChanged(ctx context.Context, e *Entity, since watermark.Value) (Cursor, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	Close() error
}

// Writer applies rows to a destination table.
type Writer interface {
	// ReplaceAll clears the entity's destination table and writes the
	// cursor's rows as a single logical unit: a concurrent reader sees
	// either the old content or the new, never an empty window.
	// Returns the number of rows written.
	ReplaceAll(ctx context.Context, e *Entity, cur Cursor) (int64, error)

	// Upsert inserts each row, or overwrites it when the primary key is
	// already present. Re-applying the same row set produces the same
	// destination state.
	Upsert(ctx context.Context, e *Entity, cur Cursor) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	Close() error
}

// WriterOptions contains options for creating a Writer.
type WriterOptions struct {
	// RowsPerBatch is the number of rows per bulk insert batch.
	RowsPerBatch int
}

// DefaultRowsPerBatch is used when WriterOptions.RowsPerBatch is zero.
const DefaultRowsPerBatch = 1000

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Driver)
)

// Register makes a driver available by its name and aliases.
// Called from each driver package's init().
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(d.Name())] = d
	for _, alias := range d.Aliases() {
		registry[strings.ToLower(alias)] = d
	}
}

// Get returns the driver registered under name.
func Get(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown database type %q (available: %s)", name, strings.Join(registeredNames(), ", "))
	}
	return d, nil
}

// registeredNames returns primary driver names, sorted. Callers must hold registryMu.
func registeredNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range registry {
		if !seen[d.Name()] {
			seen[d.Name()] = true
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)
	return names
}
