// Package progress renders row-transfer progress.
package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker tracks rows transferred across one or more sync cycles.
type Tracker struct {
	bar       *progressbar.ProgressBar
	current   atomic.Int64
	startTime time.Time
	quiet     bool
}

// New creates a tracker. A quiet tracker counts rows without rendering,
// for non-interactive runs.
func New(quiet bool) *Tracker {
	t := &Tracker{startTime: time.Now(), quiet: quiet}
	if !quiet {
		t.bar = progressbar.NewOptions64(
			-1, // unknown total: spinner mode
			progressbar.OptionSetDescription("Syncing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionSpinnerType(14),
		)
	}
	return t
}

// Add increments the row counter.
func (t *Tracker) Add(n int64) {
	t.current.Add(n)
	if t.bar != nil {
		t.bar.Add64(n)
	}
}

// Current returns the current row count.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Finish completes the bar and prints a summary.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
		fmt.Println()
	}
	if t.quiet {
		return
	}

	elapsed := time.Since(t.startTime)
	rowsPerSec := float64(t.current.Load()) / elapsed.Seconds()
	fmt.Printf("Transferred %d rows in %s (%.0f rows/sec)\n",
		t.current.Load(), elapsed.Round(time.Second), rowsPerSec)
}
