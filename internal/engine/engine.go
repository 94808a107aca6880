// Package engine runs one synchronization cycle for an entity: read the
// watermark, fetch changed rows from the source, apply them to the
// destination, and advance the watermark only after the write succeeds.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/progress"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

// Phase names the step a cycle is in. Carried in failure errors so callers
// can see where a cycle stopped.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseReadingWatermark    Phase = "reading_watermark"
	PhaseFetching            Phase = "fetching"
	PhaseWriting             Phase = "writing"
	PhaseCommittingWatermark Phase = "committing_watermark"
	PhaseDone                Phase = "done"
)

// WatermarkStore is the slice of the state store the engine needs.
type WatermarkStore interface {
	Get(entityName string, typ watermark.Type) (watermark.Value, error)
	Commit(entityName string, v watermark.Value) error
}

// Engine orchestrates sync cycles. Cycles for distinct entities may run
// concurrently; two cycles for the same entity are serialized by a
// per-entity lock held from watermark read through watermark commit.
type Engine struct {
	reader driver.Reader
	writer driver.Writer
	store  WatermarkStore

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an Engine.
func New(reader driver.Reader, writer driver.Writer, store WatermarkStore) *Engine {
	return &Engine{
		reader: reader,
		writer: writer,
		store:  store,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Options control a single cycle.
type Options struct {
	// Full forces truncate-and-reload mode regardless of the watermark.
	Full bool

	// Since overrides the stored watermark for this cycle. The stored
	// watermark is still the commit baseline: the cycle only advances it.
	Since *watermark.Value

	// ParentRows carries the row count observed by the parent cycle when
	// this cycle was triggered by a cascade. Nil for root cycles.
	ParentRows *int64

	// Progress, when set, receives per-row progress updates.
	Progress *progress.Tracker
}

// Result is the immutable outcome of one successful cycle.
type Result struct {
	Entity   string
	Rows     int64
	Previous watermark.Value
	New      watermark.Value
	FullLoad bool
	Started  time.Time
	Finished time.Time
}

// failf wraps an error with the phase it occurred in. The watermark is
// never advanced on a failed cycle, so rerunning it re-fetches the same
// change window.
func failf(phase Phase, entity string, err error) error {
	return fmt.Errorf("sync %s failed in %s: %w", entity, phase, err)
}

// RunCycle executes one cycle for the entity. Callers needing an overall
// timeout pass a context with a deadline; a deadline hit before the
// watermark commit fails the cycle with the watermark unchanged.
func (e *Engine) RunCycle(ctx context.Context, ent *driver.Entity, opts Options) (*Result, error) {
	lock := e.entityLock(ent.Name)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	if opts.ParentRows != nil {
		logging.Info("Entity %s: cycle triggered by parent with %d rows", ent.Name, *opts.ParentRows)
	}

	// ReadingWatermark
	prev, err := e.store.Get(ent.Name, ent.WatermarkType)
	if err != nil {
		return nil, failf(PhaseReadingWatermark, ent.Name, err)
	}
	since := prev
	if opts.Since != nil {
		since = *opts.Since
	}

	// A full load happens when forced, when the entity has no watermark
	// column, or on the very first run (sentinel watermark, no override).
	fullLoad := opts.Full || ent.FullLoadOnly() || (since.IsSentinel() && opts.Since == nil)

	// Fetching
	var cur driver.Cursor
	if fullLoad {
		logging.Info("Entity %s: full load from %s", ent.Name, ent.Source())
		cur, err = e.reader.FetchFull(ctx, ent)
	} else {
		logging.Info("Entity %s: incremental load since %s", ent.Name, since)
		cur, err = e.reader.FetchChanged(ctx, ent, since)
	}
	if err != nil {
		return nil, failf(PhaseFetching, ent.Name, err)
	}

	tracked, err := newTrackingCursor(cur, ent, opts.Progress)
	if err != nil {
		cur.Close()
		return nil, failf(PhaseFetching, ent.Name, err)
	}
	defer tracked.Close()

	// Writing
	var rows int64
	if fullLoad {
		rows, err = e.writer.ReplaceAll(ctx, ent, tracked)
	} else {
		rows, err = e.writer.Upsert(ctx, ent, tracked)
	}
	if err != nil {
		return nil, failf(PhaseWriting, ent.Name, err)
	}

	// CommittingWatermark. With no rows fetched the watermark is left
	// unchanged, not rewritten.
	newWM := prev
	if !ent.FullLoadOnly() && rows > 0 {
		maxSeen := tracked.MaxWatermark()
		if maxSeen.IsSentinel() {
			return nil, failf(PhaseCommittingWatermark, ent.Name,
				syncerr.Wrap(syncerr.ErrSchemaMismatch,
					fmt.Errorf("no %s values observed across %d rows", ent.WatermarkColumn, rows)))
		}
		cmp, err := maxSeen.Compare(prev)
		if err != nil {
			return nil, failf(PhaseCommittingWatermark, ent.Name, err)
		}
		if cmp > 0 {
			if err := e.store.Commit(ent.Name, maxSeen); err != nil {
				// Rows are already applied. Documented behavior: the next
				// cycle re-fetches the same window and the idempotent
				// upsert absorbs the replay.
				return nil, failf(PhaseCommittingWatermark, ent.Name, err)
			}
			newWM = maxSeen
		}
	}

	res := &Result{
		Entity:   ent.Name,
		Rows:     rows,
		Previous: prev,
		New:      newWM,
		FullLoad: fullLoad,
		Started:  started,
		Finished: time.Now(),
	}
	logging.Info("Entity %s: %d rows in %s (watermark %s -> %s)",
		ent.Name, res.Rows, res.Finished.Sub(res.Started).Round(time.Millisecond), res.Previous, res.New)
	return res, nil
}

func (e *Engine) entityLock(name string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[name] = lock
	}
	return lock
}
