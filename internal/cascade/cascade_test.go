package cascade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/engine"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

// fakeRunner returns scripted row counts per entity and records call order.
type fakeRunner struct {
	rows       map[string]int64
	errs       map[string]error
	failTimes  map[string]int // fail this many calls before using errs/rows
	calls      []string
	parentRows map[string]*int64
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		rows:       make(map[string]int64),
		errs:       make(map[string]error),
		failTimes:  make(map[string]int),
		parentRows: make(map[string]*int64),
	}
}

func (r *fakeRunner) RunCycle(ctx context.Context, ent *driver.Entity, opts engine.Options) (*engine.Result, error) {
	r.calls = append(r.calls, ent.Name)
	r.parentRows[ent.Name] = opts.ParentRows
	if n := r.failTimes[ent.Name]; n > 0 {
		r.failTimes[ent.Name] = n - 1
		return nil, syncerr.Wrap(syncerr.ErrWriteConflict, errors.New("simulated"))
	}
	if err := r.errs[ent.Name]; err != nil {
		return nil, err
	}
	return &engine.Result{Entity: ent.Name, Rows: r.rows[ent.Name]}, nil
}

func entities(names ...string) []*driver.Entity {
	out := make([]*driver.Entity, len(names))
	for i, n := range names {
		out[i] = &driver.Entity{Name: n, SourceTable: n}
	}
	return out
}

func TestPredicateGatesChild(t *testing.T) {
	tests := []struct {
		name      string
		rows      int64
		wantCalls []string
	}{
		{"above threshold triggers child", 501, []string{"customers", "products"}},
		{"at threshold does not", 500, []string{"customers"}},
		{"below threshold does not", 10, []string{"customers"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.rows["customers"] = tt.rows

			c, err := New(runner, entities("customers", "products"),
				[]Rule{{Parent: "customers", Child: "products", MinRows: 500}})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			if _, err := c.Run(context.Background(), "customers", engine.Options{}); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(runner.calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", runner.calls, tt.wantCalls)
			}
			for i := range tt.wantCalls {
				if runner.calls[i] != tt.wantCalls[i] {
					t.Errorf("calls = %v, want %v", runner.calls, tt.wantCalls)
				}
			}
		})
	}
}

func TestParentRowCountPassedToChild(t *testing.T) {
	runner := newFakeRunner()
	runner.rows["customers"] = 605

	c, err := New(runner, entities("customers", "products"),
		[]Rule{{Parent: "customers", Child: "products", MinRows: 500}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Run(context.Background(), "customers", engine.Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := runner.parentRows["products"]
	if got == nil || *got != 605 {
		t.Errorf("child parentRows = %v, want 605", got)
	}
	if runner.parentRows["customers"] != nil {
		t.Error("root cycle should not carry parent rows")
	}
}

func TestDepthFirstOrder(t *testing.T) {
	// a -> b (b -> d), then a -> c. b's subtree completes before c starts.
	runner := newFakeRunner()
	for _, n := range []string{"a", "b", "c", "d"} {
		runner.rows[n] = 100
	}

	c, err := New(runner, entities("a", "b", "c", "d"), []Rule{
		{Parent: "a", Child: "b", MinRows: 0},
		{Parent: "a", Child: "c", MinRows: 0},
		{Parent: "b", Child: "d", MinRows: 0},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := c.Run(context.Background(), "a", engine.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"a", "b", "d", "c"}
	if len(runner.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", runner.calls, want)
	}
	for i := range want {
		if runner.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", runner.calls, want)
		}
	}
	if len(results) != 4 {
		t.Errorf("len(results) = %d, want 4", len(results))
	}
}

func TestFailureStopsCascade(t *testing.T) {
	runner := newFakeRunner()
	runner.rows["customers"] = 1000
	runner.errs["customers"] = syncerr.Wrap(syncerr.ErrSchemaMismatch, errors.New("missing column"))

	c, err := New(runner, entities("customers", "products"),
		[]Rule{{Parent: "customers", Child: "products", MinRows: 0}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Run(context.Background(), "customers", engine.Options{})
	if !errors.Is(err, syncerr.ErrSchemaMismatch) {
		t.Errorf("error = %v, want ErrSchemaMismatch", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("child ran despite parent failure: calls = %v", runner.calls)
	}
}

func TestCycleDetectionAtRegistration(t *testing.T) {
	runner := newFakeRunner()

	_, err := New(runner, entities("a", "b", "c"), []Rule{
		{Parent: "a", Child: "b"},
		{Parent: "b", Child: "c"},
		{Parent: "c", Child: "a"},
	})
	if err == nil {
		t.Fatal("cyclic rules should be rejected")
	}
	if !errors.Is(err, syncerr.ErrCyclicCascade) {
		t.Errorf("error = %v, want ErrCyclicCascade", err)
	}
	if len(runner.calls) != 0 {
		t.Error("no cycle may run when registration fails")
	}
}

func TestSelfCycleDetected(t *testing.T) {
	_, err := New(newFakeRunner(), entities("a"), []Rule{{Parent: "a", Child: "a"}})
	if !errors.Is(err, syncerr.ErrCyclicCascade) {
		t.Errorf("error = %v, want ErrCyclicCascade", err)
	}
}

func TestDiamondIsNotACycle(t *testing.T) {
	// a -> b, a -> c, b -> d, c -> d: shared child, no cycle.
	if _, err := New(newFakeRunner(), entities("a", "b", "c", "d"), []Rule{
		{Parent: "a", Child: "b"},
		{Parent: "a", Child: "c"},
		{Parent: "b", Child: "d"},
		{Parent: "c", Child: "d"},
	}); err != nil {
		t.Errorf("diamond graph rejected: %v", err)
	}
}

func TestUnknownEntityInRule(t *testing.T) {
	_, err := New(newFakeRunner(), entities("a"), []Rule{{Parent: "a", Child: "ghost"}})
	if !errors.Is(err, syncerr.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}

func TestRetryOnRetryableFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.rows["customers"] = 10
	runner.failTimes["customers"] = 2

	c, err := New(runner, entities("customers"), nil,
		WithRetry(RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := c.Run(context.Background(), "customers", engine.Options{})
	if err != nil {
		t.Fatalf("Run after retries: %v", err)
	}
	if len(runner.calls) != 3 {
		t.Errorf("attempts = %d, want 3", len(runner.calls))
	}
	if len(results) != 1 || results[0].Rows != 10 {
		t.Errorf("results = %v", results)
	}
}

func TestNoRetryForNonRetryable(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["customers"] = syncerr.Wrap(syncerr.ErrConfiguration, errors.New("bad"))

	c, err := New(runner, entities("customers"), nil,
		WithRetry(RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Run(context.Background(), "customers", engine.Options{}); err == nil {
		t.Fatal("expected failure")
	}
	if len(runner.calls) != 1 {
		t.Errorf("non-retryable error retried %d times", len(runner.calls)-1)
	}
}

// recorderFunc adapts a function to RunRecorder.
type recorderFunc func(entity string, started, finished time.Time, rows int64, fullLoad bool, parentRows *int64, runErr error) error

func (f recorderFunc) RecordCycle(entity string, started, finished time.Time, rows int64, fullLoad bool, parentRows *int64, runErr error) error {
	return f(entity, started, finished, rows, fullLoad, parentRows, runErr)
}

func TestRecorderSeesSuccessAndFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.rows["customers"] = 700
	runner.errs["products"] = syncerr.Wrap(syncerr.ErrDestinationUnavailable, errors.New("down"))

	type rec struct {
		entity string
		rows   int64
		failed bool
	}
	var recs []rec
	recorder := recorderFunc(func(entity string, _, _ time.Time, rows int64, _ bool, _ *int64, runErr error) error {
		recs = append(recs, rec{entity, rows, runErr != nil})
		return nil
	})

	c, err := New(runner, entities("customers", "products"),
		[]Rule{{Parent: "customers", Child: "products", MinRows: 500}},
		WithRecorder(recorder))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Run(context.Background(), "customers", engine.Options{}); err == nil {
		t.Fatal("expected child failure to propagate")
	}

	if len(recs) != 2 {
		t.Fatalf("recorded %d cycles, want 2", len(recs))
	}
	if recs[0].entity != "customers" || recs[0].failed || recs[0].rows != 700 {
		t.Errorf("parent record = %+v", recs[0])
	}
	if recs[1].entity != "products" || !recs[1].failed {
		t.Errorf("child record = %+v", recs[1])
	}
}
