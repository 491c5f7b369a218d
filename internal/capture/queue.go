// Package capture submits user captures to the remote API and queues them
// locally while the API is unreachable.
package capture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rcliao/polymath/internal/connectivity"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/remote"
)

// DefaultKind is used when a capture is submitted without a kind.
const DefaultKind = "voice"

// Store is the subset of store.Store the queue needs.
type Store interface {
	AddCapture(ctx context.Context, c model.PendingCapture) (*model.PendingCapture, error)
	PendingCaptures(ctx context.Context) ([]model.PendingCapture, error)
	RecordCaptureFailure(ctx context.Context, id int64, reason string) error
	DeleteCapture(ctx context.Context, id int64) error
}

// Submitter posts a capture to the remote API.
type Submitter interface {
	SubmitCapture(ctx context.Context, c remote.Capture) error
}

// Queue routes captures to the API or the pending collection.
type Queue struct {
	store  Store
	remote Submitter
	online connectivity.Signal
	logger *slog.Logger
}

// NewQueue creates a capture queue.
func NewQueue(st Store, api Submitter, online connectivity.Signal, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:  st,
		remote: api,
		online: online,
		logger: logger.With("component", "capture"),
	}
}

// SubmitResult reports where a capture went.
type SubmitResult struct {
	Queued  bool
	Pending *model.PendingCapture
}

// Submit sends the capture when online. Offline, or when the send fails, the
// capture is stored as pending. Only a failure to queue is returned.
func (q *Queue) Submit(ctx context.Context, kind, body string) (*SubmitResult, error) {
	if kind == "" {
		kind = DefaultKind
	}
	if q.online.Online() {
		err := q.remote.SubmitCapture(ctx, remote.Capture{Kind: kind, Body: body})
		if err == nil {
			return &SubmitResult{}, nil
		}
		q.logger.Warn("submit capture failed, queueing", "error", err)
	}

	pending, err := q.store.AddCapture(ctx, model.PendingCapture{Kind: kind, Body: body})
	if err != nil {
		return nil, fmt.Errorf("queue capture: %w", err)
	}
	q.logger.Info("capture queued", "id", pending.ID)
	return &SubmitResult{Queued: true, Pending: pending}, nil
}

// FlushResult counts resubmission outcomes.
type FlushResult struct {
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
}

// Flush resubmits every pending capture, oldest first. Submitted captures are
// deleted; failed ones keep their place with an incremented retry count.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	var res FlushResult
	if !q.online.Online() {
		return res, nil
	}
	pending, err := q.store.PendingCaptures(ctx)
	if err != nil {
		return res, fmt.Errorf("list pending captures: %w", err)
	}

	for _, c := range pending {
		if err := q.remote.SubmitCapture(ctx, remote.Capture{Kind: c.Kind, Body: c.Body}); err != nil {
			res.Failed++
			if rerr := q.store.RecordCaptureFailure(ctx, c.ID, err.Error()); rerr != nil {
				q.logger.Warn("record capture failure", "id", c.ID, "error", rerr)
			}
			continue
		}
		if err := q.store.DeleteCapture(ctx, c.ID); err != nil {
			q.logger.Warn("delete submitted capture", "id", c.ID, "error", err)
		}
		res.Submitted++
	}

	if res.Submitted > 0 || res.Failed > 0 {
		q.logger.Info("flushed pending captures", "submitted", res.Submitted, "failed", res.Failed)
	}
	return res, nil
}
