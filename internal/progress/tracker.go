// Package progress saves and restores the reading position of a resource.
package progress

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/store"
)

// Defaults used when Options fields are zero.
const (
	DefaultDebounce          = time.Second
	DefaultTolerance         = 50.0
	DefaultMaxAttempts       = 5
	DefaultBaseDelay         = 100 * time.Millisecond
	DefaultMinRestorePercent = 2.0

	snippetLimit = 120
	saveTimeout  = 5 * time.Second
)

// Viewport is the scrollable view showing a resource.
type Viewport interface {
	ScrollOffset() float64
	MaxScroll() float64
	ScrollTo(offset float64)
	// SnippetAt returns a short text excerpt visible at offset.
	SnippetAt(offset float64) string
}

// Store is the subset of store.Store the tracker needs.
type Store interface {
	SaveProgress(ctx context.Context, p model.ReadingProgress) error
	GetProgress(ctx context.Context, resourceID string) (*model.ReadingProgress, error)
}

// Options tunes save and restore behaviour.
type Options struct {
	Debounce          time.Duration
	Tolerance         float64
	MaxAttempts       int
	BaseDelay         time.Duration
	MinRestorePercent float64
	Logger            *slog.Logger
}

func (o *Options) normalize() {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MinRestorePercent < 0 {
		o.MinRestorePercent = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Outcome of a restore attempt.
type Outcome string

const (
	OutcomeRestored Outcome = "restored"
	OutcomeNoRecord Outcome = "no_record"
	OutcomeNearTop  Outcome = "near_top"
	OutcomeMismatch Outcome = "mismatch"
	OutcomeAlready  Outcome = "already_restored"
	// OutcomeReflowed means the offset was reached but the text there differs
	// from the saved snippet, usually because the content reflowed.
	OutcomeReflowed Outcome = "reflowed"
)

// RestoreResult reports what Restore did.
type RestoreResult struct {
	Outcome  Outcome `json:"outcome"`
	Attempts int     `json:"attempts,omitempty"`
	Offset   float64 `json:"offset,omitempty"`
	Percent  float64 `json:"percent,omitempty"`
}

// Tracker persists the position of one resource in one viewport.
type Tracker struct {
	store      Store
	resourceID string
	view       Viewport
	opts       Options
	logger     *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	restored bool
	closed   bool
}

// New creates a tracker for resourceID shown in view.
func New(st Store, resourceID string, view Viewport, opts Options) *Tracker {
	opts.normalize()
	return &Tracker{
		store:      st,
		resourceID: resourceID,
		view:       view,
		opts:       opts,
		logger:     opts.Logger.With("component", "progress", "resource", resourceID),
	}
}

// Percent converts an offset into a percentage of max, clamped to [0, 100].
func Percent(offset, max float64) float64 {
	if max <= 0 {
		return 0
	}
	p := offset * 100 / max
	return math.Max(0, math.Min(100, p))
}

// OnScroll schedules a save after the quiet period. Calls within the period
// coalesce into one write.
func (t *Tracker) OnScroll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.opts.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := t.save(ctx); err != nil {
			t.logger.Warn("save reading progress", "error", err)
		}
	})
}

// Flush cancels any pending debounced save and writes the current position
// now. Call it when the view is hidden or about to close.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	return t.save(ctx)
}

// Close flushes and stops accepting scroll events.
func (t *Tracker) Close(ctx context.Context) error {
	err := t.Flush(ctx)
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return err
}

func (t *Tracker) save(ctx context.Context) error {
	offset := t.view.ScrollOffset()
	return t.store.SaveProgress(ctx, model.ReadingProgress{
		ResourceID:   t.resourceID,
		ScrollOffset: offset,
		Percent:      Percent(offset, t.view.MaxScroll()),
		Snippet:      truncate(t.view.SnippetAt(offset), snippetLimit),
		UpdatedAt:    time.Now(),
	})
}

// Restore scrolls to the saved position at most once per tracker. If the
// view cannot reach the saved offset yet, it retries with increasing delays.
// Running out of attempts is a soft failure and leaves the view where it is.
func (t *Tracker) Restore(ctx context.Context) (RestoreResult, error) {
	t.mu.Lock()
	if t.restored {
		t.mu.Unlock()
		return RestoreResult{Outcome: OutcomeAlready}, nil
	}
	t.restored = true
	t.mu.Unlock()

	saved, err := t.store.GetProgress(ctx, t.resourceID)
	if errors.Is(err, store.ErrNotFound) {
		return RestoreResult{Outcome: OutcomeNoRecord}, nil
	}
	if err != nil {
		return RestoreResult{}, err
	}
	if saved.Percent < t.opts.MinRestorePercent {
		return RestoreResult{Outcome: OutcomeNearTop, Percent: saved.Percent}, nil
	}

	target := saved.ScrollOffset
	for attempt := 1; attempt <= t.opts.MaxAttempts; attempt++ {
		t.view.ScrollTo(target)
		got := t.view.ScrollOffset()
		if math.Abs(got-target) <= t.opts.Tolerance {
			outcome := OutcomeRestored
			current := truncate(t.view.SnippetAt(got), snippetLimit)
			if saved.Snippet != "" && current != "" && current != saved.Snippet {
				t.logger.Info("reading position text changed", "resource", t.resourceID, "offset", got)
				outcome = OutcomeReflowed
			}
			return RestoreResult{
				Outcome:  outcome,
				Attempts: attempt,
				Offset:   got,
				Percent:  Percent(got, t.view.MaxScroll()),
			}, nil
		}
		if attempt == t.opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, t.opts.BaseDelay*time.Duration(attempt)); err != nil {
			return RestoreResult{}, err
		}
	}

	t.logger.Debug("reading position not reachable", "target", target, "attempts", t.opts.MaxAttempts)
	return RestoreResult{
		Outcome:  OutcomeMismatch,
		Attempts: t.opts.MaxAttempts,
		Offset:   t.view.ScrollOffset(),
		Percent:  Percent(t.view.ScrollOffset(), t.view.MaxScroll()),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
