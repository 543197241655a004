package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TCaken/loancrm/pkg/logging"
)

// BatchArchiver stores the raw request for audit. Archival is best-effort
// and never blocks the enqueue.
type BatchArchiver interface {
	Store(ctx context.Context, batchID string, date time.Time, raw []byte) error
	Enabled() bool
}

// Publisher enqueues reconciliation passes for the background worker:
// archive the raw batch, persist a pending job record, then send the
// queue message.
type Publisher struct {
	queue   Queue
	jobs    JobRecorder
	archive BatchArchiver
	logger  *logging.Logger
}

func NewPublisher(queue Queue, jobs JobRecorder, archive BatchArchiver, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("reconcile: queue cannot be nil")
	}
	if jobs == nil {
		panic("reconcile: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, archive: archive, logger: logger}
}

// Publish registers a pending job for the request and enqueues it. The
// returned ID is what callers poll for the summary.
func (p *Publisher) Publish(ctx context.Context, req Request) (string, error) {
	jobID := uuid.NewString()

	if p.archive != nil && p.archive.Enabled() {
		if raw, err := json.Marshal(req); err == nil {
			if err := p.archive.Store(ctx, jobID, time.Now().UTC(), raw); err != nil {
				p.logger.Warn("feed batch archive failed", "error", err, "job_id", jobID)
			}
		}
	}

	if err := p.jobs.PutPending(ctx, &JobRecord{
		JobID:    jobID,
		Mode:     req.Mode,
		RowCount: len(req.Rows),
	}); err != nil {
		return "", err
	}

	body, err := json.Marshal(JobPayload{JobID: jobID, Request: req})
	if err != nil {
		return "", fmt.Errorf("reconcile: failed to encode payload: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		if updater, ok := p.jobs.(JobUpdater); ok {
			_ = updater.MarkFailed(ctx, jobID, "enqueue failed: "+err.Error())
		}
		return "", err
	}

	p.logger.Info("reconcile job enqueued", "job_id", jobID, "mode", req.Mode, "rows", len(req.Rows))
	return jobID, nil
}
