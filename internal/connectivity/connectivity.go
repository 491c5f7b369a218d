// Package connectivity exposes the online/offline and visibility signals
// consulted before any network work.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Signal reports whether the remote API is believed reachable. It must not
// perform a network round trip.
type Signal interface {
	Online() bool
}

// Visibility reports whether the user is currently looking at the
// application. Periodic work is skipped while hidden.
type Visibility interface {
	Visible() bool
}

// Flag is an atomic boolean usable as either Signal or Visibility.
type Flag struct {
	v atomic.Bool
}

// NewFlag returns a flag with the given initial value.
func NewFlag(initial bool) *Flag {
	f := &Flag{}
	f.v.Store(initial)
	return f
}

// Set updates the flag and reports whether the value changed.
func (f *Flag) Set(v bool) bool {
	return f.v.Swap(v) != v
}

func (f *Flag) Online() bool  { return f.v.Load() }
func (f *Flag) Visible() bool { return f.v.Load() }

// Always is a Signal and Visibility that is constantly true.
type Always struct{}

func (Always) Online() bool  { return true }
func (Always) Visible() bool { return true }

// Prober periodically checks a health URL and updates a Flag.
type Prober struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Flag     *Flag
	Logger   *slog.Logger
}

// Check performs one probe and records the result. Any HTTP response counts
// as online; only transport errors mark the flag offline.
func (p *Prober) Check(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	online := false
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err == nil {
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			online = true
		}
	}
	if p.Flag.Set(online) {
		p.logger().Info("connectivity changed", "online", online)
	}
	return online
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger.With("component", "connectivity")
	}
	return slog.Default().With("component", "connectivity")
}
