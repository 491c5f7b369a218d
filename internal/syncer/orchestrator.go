// Package syncer refreshes every cached collection from the remote API.
//
// One Orchestrator runs per process. At most one sync pass runs at a time; a
// request arriving while a pass is running is dropped.
package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/polymath/internal/broadcast"
	"github.com/rcliao/polymath/internal/capture"
	"github.com/rcliao/polymath/internal/connectivity"
	"github.com/rcliao/polymath/internal/contentcache"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/remote"
	"github.com/rcliao/polymath/internal/store"
)

// State is the orchestrator state.
type State int32

const (
	StateIdle State = iota
	StateSyncing
)

func (s State) String() string {
	if s == StateSyncing {
		return "syncing"
	}
	return "idle"
}

// SkipReason explains why a Sync call did not run.
type SkipReason string

const (
	SkipOffline    SkipReason = "offline"
	SkipInProgress SkipReason = "in_progress"
)

// Cacher downloads one article for offline reading.
type Cacher interface {
	Download(ctx context.Context, r model.CachedResource) (*contentcache.Result, error)
}

// CaptureFlusher resubmits queued captures.
type CaptureFlusher interface {
	Flush(ctx context.Context) (capture.FlushResult, error)
}

// Options configures an Orchestrator.
type Options struct {
	Online     connectivity.Signal
	Visible    connectivity.Visibility
	Events     broadcast.Publisher
	Captures   CaptureFlusher
	Dashboards []string
	Logger     *slog.Logger
}

// Orchestrator coordinates sync passes.
type Orchestrator struct {
	store      store.Store
	api        remote.API
	cacher     Cacher
	captures   CaptureFlusher
	online     connectivity.Signal
	visible    connectivity.Visibility
	events     broadcast.Publisher
	dashboards []string
	logger     *slog.Logger

	state atomic.Int32
	runs  atomic.Int64

	timerMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an Orchestrator. Nil signals default to always online and
// always visible.
func New(st store.Store, api remote.API, cacher Cacher, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:      st,
		api:        api,
		cacher:     cacher,
		captures:   opts.Captures,
		online:     opts.Online,
		visible:    opts.Visible,
		events:     opts.Events,
		dashboards: opts.Dashboards,
		logger:     opts.Logger,
	}
	if o.online == nil {
		o.online = connectivity.Always{}
	}
	if o.visible == nil {
		o.visible = connectivity.Always{}
	}
	if o.events == nil {
		o.events = broadcast.Nop{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "syncer")
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Runs returns the number of sync passes that ran to completion.
func (o *Orchestrator) Runs() int64 {
	return o.runs.Load()
}

// StepResult is the outcome of one sub-sync.
type StepResult struct {
	Name    string `json:"name"`
	Fetched int    `json:"fetched"`
	Pruned  int    `json:"pruned,omitempty"`
	Cached  int    `json:"cached,omitempty"`
	Partial int    `json:"partial,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report summarises one Sync call.
type Report struct {
	RunID    string        `json:"run_id,omitempty"`
	Skipped  SkipReason    `json:"skipped,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Steps    []StepResult  `json:"steps,omitempty"`
}

// Failed returns the names of sub-syncs that failed.
func (r *Report) Failed() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Error != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

type step struct {
	name string
	run  func(ctx context.Context) StepResult
}

// Sync runs one pass unless offline or already syncing. Failures inside the
// pass are recorded in the report and logged; they never abort other
// sub-syncs.
func (o *Orchestrator) Sync(ctx context.Context) *Report {
	report := &Report{Started: time.Now()}
	if !o.online.Online() {
		o.logger.Debug("sync skipped while offline")
		report.Skipped = SkipOffline
		return report
	}
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateSyncing)) {
		o.logger.Info("sync already in progress, dropping request")
		report.Skipped = SkipInProgress
		return report
	}
	defer o.state.Store(int32(StateIdle))

	report.RunID = ulid.Make().String()
	logger := o.logger.With("run", report.RunID)
	logger.Info("sync started")

	steps := o.steps()
	results := make([]StepResult, len(steps))
	var g errgroup.Group
	for i, st := range steps {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					results[i] = StepResult{Name: st.name, Error: "panic during sub-sync"}
					logger.Error("sub-sync panicked", "step", st.name, "panic", p)
				}
			}()
			results[i] = st.run(ctx)
			results[i].Name = st.name
			return nil
		})
	}
	_ = g.Wait()

	report.Steps = results
	report.Duration = time.Since(report.Started)
	o.runs.Add(1)

	for _, r := range results {
		if r.Error != "" {
			logger.Warn("sub-sync failed", "step", r.Name, "error", r.Error)
		}
	}
	logger.Info("sync finished", "duration", report.Duration, "failed", len(report.Failed()))
	o.publishComplete(report)
	return report
}

func (o *Orchestrator) publishComplete(report *Report) {
	data, err := json.Marshal(map[string]any{
		"duration_ms": report.Duration.Milliseconds(),
		"failed":      report.Failed(),
	})
	if err != nil {
		data = nil
	}
	o.events.Publish(broadcast.Event{
		Type:  broadcast.EventSyncComplete,
		RunID: report.RunID,
		Data:  data,
	})
}

// Start runs Sync every interval while the view is visible. It returns
// immediately; calling Start twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context, interval time.Duration) {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()
	if o.cancel != nil || interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !o.visible.Visible() {
					continue
				}
				o.Sync(ctx)
			}
		}
	}(o.done)
	o.logger.Info("periodic sync started", "interval", interval)
}

// Stop halts periodic mode and waits for an in-flight timer tick to return.
func (o *Orchestrator) Stop() {
	o.timerMu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.timerMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
