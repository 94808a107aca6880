package engine

import (
	"fmt"
	"io"

	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/progress"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

// trackingCursor wraps the fetch cursor to observe the watermark column
// while the writer consumes rows. Rows arrive ordered by the watermark
// column ascending, so the last observed value is the batch maximum.
type trackingCursor struct {
	inner driver.Cursor
	wmIdx int
	typ   watermark.Type
	max   watermark.Value
	count int64
	prog  *progress.Tracker
}

func newTrackingCursor(inner driver.Cursor, ent *driver.Entity, prog *progress.Tracker) (*trackingCursor, error) {
	t := &trackingCursor{inner: inner, wmIdx: -1, typ: ent.WatermarkType, prog: prog}
	if ent.WatermarkColumn != "" {
		for i, col := range inner.Columns() {
			if col == ent.WatermarkColumn {
				t.wmIdx = i
				break
			}
		}
		if t.wmIdx < 0 {
			return nil, syncerr.Wrap(syncerr.ErrSchemaMismatch,
				fmt.Errorf("watermark column %q not present in fetched columns", ent.WatermarkColumn))
		}
		t.max = watermark.Sentinel(ent.WatermarkType)
	}
	return t, nil
}

func (t *trackingCursor) Columns() []string {
	return t.inner.Columns()
}

func (t *trackingCursor) Next() ([]any, error) {
	row, err := t.inner.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	t.count++
	if t.prog != nil {
		t.prog.Add(1)
	}
	if t.wmIdx >= 0 {
		v, convErr := watermark.FromColumn(t.typ, row[t.wmIdx])
		if convErr != nil {
			return nil, syncerr.Wrap(syncerr.ErrSchemaMismatch, convErr)
		}
		// Ascending order makes the last value the maximum; compare anyway
		// so an unordered source cannot shrink the committed watermark.
		cmp, cmpErr := v.Compare(t.max)
		if cmpErr != nil {
			return nil, cmpErr
		}
		if cmp > 0 {
			t.max = v
		}
	}
	return row, nil
}

func (t *trackingCursor) Close() error {
	return t.inner.Close()
}

// Count returns the number of rows handed to the writer so far.
func (t *trackingCursor) Count() int64 {
	return t.count
}

// MaxWatermark returns the maximum watermark value observed, or the
// sentinel when no rows carried one.
func (t *trackingCursor) MaxWatermark() watermark.Value {
	return t.max
}
