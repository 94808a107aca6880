package driver

import (
	"database/sql"
	"io"
)

// Cursor is a finite, forward-only sequence of rows. Next returns io.EOF
// when the sequence is exhausted. Cursors must be closed.
type Cursor interface {
	// Columns returns the column names, in row order.
	Columns() []string

	// Next returns the next row, or io.EOF when done.
	Next() ([]any, error)

	Close() error
}

// SQLCursor adapts *sql.Rows to Cursor. Shared by the database/sql based
// readers (mysql, mssql).
type SQLCursor struct {
	rows *sql.Rows
	cols []string
}

// NewSQLCursor wraps rows. The column set is captured eagerly so Columns
// works even after exhaustion.
func NewSQLCursor(rows *sql.Rows) (*SQLCursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &SQLCursor{rows: rows, cols: cols}, nil
}

func (c *SQLCursor) Columns() []string {
	return c.cols
}

func (c *SQLCursor) Next() ([]any, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	vals := make([]any, len(c.cols))
	ptrs := make([]any, len(c.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

func (c *SQLCursor) Close() error {
	return c.rows.Close()
}

// SliceCursor is an in-memory Cursor over a fixed row set. Used by the CSV
// loader and by tests.
type SliceCursor struct {
	cols []string
	rows [][]any
	pos  int
}

// NewSliceCursor creates a cursor over rows with the given columns.
func NewSliceCursor(cols []string, rows [][]any) *SliceCursor {
	return &SliceCursor{cols: cols, rows: rows}
}

func (c *SliceCursor) Columns() []string {
	return c.cols
}

func (c *SliceCursor) Next() ([]any, error) {
	if c.pos >= len(c.rows) {
		return nil, io.EOF
	}
	row := c.rows[c.pos]
	c.pos++
	return row, nil
}

func (c *SliceCursor) Close() error {
	return nil
}

// ReadBatch pulls up to n rows from the cursor. It returns the rows read
// and io.EOF once the cursor is exhausted; a non-empty batch may be
// returned together with io.EOF.
func ReadBatch(cur Cursor, n int) ([][]any, error) {
	batch := make([][]any, 0, n)
	for len(batch) < n {
		row, err := cur.Next()
		if err == io.EOF {
			return batch, io.EOF
		}
		if err != nil {
			return batch, err
		}
		batch = append(batch, row)
	}
	return batch, nil
}
