// Package cascade triggers dependent sync cycles from the results of
// parent cycles. Rules map a parent entity to child entities, each gated
// by a row-count predicate; traversal is depth-first and deterministic.
package cascade

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/engine"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

// Rule cascades from Parent to Child when the parent's cycle transfers
// strictly more than MinRows rows.
type Rule struct {
	Parent  string
	Child   string
	MinRows int64
}

// CycleRunner runs one sync cycle. Implemented by *engine.Engine.
type CycleRunner interface {
	RunCycle(ctx context.Context, ent *driver.Entity, opts engine.Options) (*engine.Result, error)
}

// RunRecorder receives the outcome of every cycle, successful or failed.
// Implemented by *state.State; nil disables history.
type RunRecorder interface {
	RecordCycle(entity string, started, finished time.Time, rows int64, fullLoad bool, parentRows *int64, runErr error) error
}

// RetryPolicy bounds re-invocation of retryable cycle failures. Failed
// cycles never mutate persisted state, so re-running is always safe.
type RetryPolicy struct {
	MaxRetries int           // additional attempts after the first
	Backoff    time.Duration // doubled after each attempt
}

// Controller owns the validated cascade rule graph.
type Controller struct {
	runner   CycleRunner
	entities map[string]*driver.Entity
	rules    map[string][]Rule // parent -> rules, registration order
	recorder RunRecorder
	retry    RetryPolicy
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder records every cycle in the given run history.
func WithRecorder(r RunRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithRetry applies a bounded retry policy to retryable cycle failures.
func WithRetry(p RetryPolicy) Option {
	return func(c *Controller) { c.retry = p }
}

// New validates the rule graph and builds a Controller. Rules referencing
// unknown entities are a configuration error; a cycle in the rule graph
// fails with a cyclic-cascade error before any sync cycle can run.
func New(runner CycleRunner, entities []*driver.Entity, rules []Rule, opts ...Option) (*Controller, error) {
	c := &Controller{
		runner:   runner,
		entities: make(map[string]*driver.Entity, len(entities)),
		rules:    make(map[string][]Rule),
	}
	for _, e := range entities {
		c.entities[e.Name] = e
	}
	for _, r := range rules {
		if _, ok := c.entities[r.Parent]; !ok {
			return nil, syncerr.Wrap(syncerr.ErrConfiguration,
				fmt.Errorf("cascade rule references unknown parent entity %q", r.Parent))
		}
		if _, ok := c.entities[r.Child]; !ok {
			return nil, syncerr.Wrap(syncerr.ErrConfiguration,
				fmt.Errorf("cascade rule references unknown child entity %q", r.Child))
		}
		c.rules[r.Parent] = append(c.rules[r.Parent], r)
	}

	if path := findCycle(c.rules); path != nil {
		return nil, syncerr.Wrap(syncerr.ErrCyclicCascade,
			fmt.Errorf("cascade graph contains a cycle: %s", joinPath(path)))
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes the cycle for root and, on success, cascades depth-first
// into every child whose predicate the parent's row count satisfies. A
// parent completes fully, children included, before its next sibling.
// Returns all results in execution order; the first failure stops the
// cascade and is propagated.
func (c *Controller) Run(ctx context.Context, root string, opts engine.Options) ([]*engine.Result, error) {
	ent, ok := c.entities[root]
	if !ok {
		return nil, syncerr.Wrap(syncerr.ErrConfiguration, fmt.Errorf("unknown entity %q", root))
	}
	var results []*engine.Result
	if err := c.run(ctx, ent, opts, &results); err != nil {
		return results, err
	}
	return results, nil
}

func (c *Controller) run(ctx context.Context, ent *driver.Entity, opts engine.Options, results *[]*engine.Result) error {
	res, err := c.runWithRetry(ctx, ent, opts)
	if err != nil {
		return err
	}
	*results = append(*results, res)

	for _, rule := range c.rules[ent.Name] {
		if res.Rows <= rule.MinRows {
			logging.Info("Cascade %s -> %s skipped: %d rows does not exceed threshold %d",
				rule.Parent, rule.Child, res.Rows, rule.MinRows)
			continue
		}
		logging.Info("Cascade %s -> %s: %d rows exceeds threshold %d",
			rule.Parent, rule.Child, res.Rows, rule.MinRows)

		parentRows := res.Rows
		childOpts := engine.Options{
			Full:       opts.Full,
			ParentRows: &parentRows,
			Progress:   opts.Progress,
		}
		if err := c.run(ctx, c.entities[rule.Child], childOpts, results); err != nil {
			return fmt.Errorf("cascading %s -> %s: %w", rule.Parent, rule.Child, err)
		}
	}
	return nil
}

// runWithRetry runs one cycle, re-invoking it for retryable failures
// within the policy bounds, and records the final outcome.
func (c *Controller) runWithRetry(ctx context.Context, ent *driver.Entity, opts engine.Options) (*engine.Result, error) {
	started := time.Now()

	var res *engine.Result
	var err error
	for attempt := 0; ; attempt++ {
		res, err = c.runner.RunCycle(ctx, ent, opts)
		if err == nil || !syncerr.Retryable(err) || syncerr.Canceled(err) || attempt >= c.retry.MaxRetries {
			break
		}
		backoff := c.retry.Backoff << attempt
		logging.Warn("Retry %d/%d for %s after %v (error: %v)",
			attempt+1, c.retry.MaxRetries, ent.Name, backoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if c.recorder != nil {
		var rows int64
		fullLoad := false
		if res != nil {
			rows = res.Rows
			fullLoad = res.FullLoad
		}
		if recErr := c.recorder.RecordCycle(ent.Name, started, time.Now(), rows, fullLoad, opts.ParentRows, err); recErr != nil {
			logging.Warn("Failed to record run for %s: %v", ent.Name, recErr)
		}
	}
	return res, err
}

// findCycle returns one cycle path in the rule graph, or nil.
// Standard three-color depth-first search.
func findCycle(rules map[string][]Rule) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		path = append(path, node)
		for _, rule := range rules[node] {
			switch color[rule.Child] {
			case gray:
				// Slice the path from the first occurrence of the child.
				for i, n := range path {
					if n == rule.Child {
						cycle = append(append([]string{}, path[i:]...), rule.Child)
						return true
					}
				}
			case white:
				if visit(rule.Child) {
					return true
				}
			}
		}
		color[node] = black
		path = path[:len(path)-1]
		return false
	}

	// Deterministic iteration keeps error messages stable.
	for _, parent := range sortedParents(rules) {
		if color[parent] == white {
			if visit(parent) {
				return cycle
			}
		}
	}
	return nil
}

func sortedParents(rules map[string][]Rule) []string {
	parents := make([]string, 0, len(rules))
	for p := range rules {
		parents = append(parents, p)
	}
	sort.Strings(parents)
	return parents
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}
