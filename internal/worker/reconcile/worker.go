// Package reconcileworker consumes queued reconciliation jobs and runs them
// through the engine.
package reconcileworker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/TCaken/loancrm/internal/reconcile"
	"github.com/TCaken/loancrm/pkg/logging"
)

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
	deleteTimeout       = 5 * time.Second
)

// Runner is the engine surface the worker drives.
type Runner interface {
	Run(ctx context.Context, req reconcile.Request) (*reconcile.Summary, error)
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// Option customizes worker behavior.
type Option func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) Option {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) Option {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) Option {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Worker long-polls the queue and executes reconciliation passes.
type Worker struct {
	engine Runner
	queue  reconcile.Queue
	jobs   reconcile.JobUpdater
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

func New(engine Runner, queue reconcile.Queue, jobs reconcile.JobUpdater, logger *logging.Logger, opts ...Option) *Worker {
	if engine == nil {
		panic("reconcileworker: engine cannot be nil")
	}
	if queue == nil {
		panic("reconcileworker: queue cannot be nil")
	}
	if jobs == nil {
		panic("reconcileworker: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{engine: engine, queue: queue, jobs: jobs, logger: logger, cfg: cfg}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("reconcile worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("reconcile worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive reconcile jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg reconcile.QueueMessage) {
	var payload reconcile.JobPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode reconcile job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing reconcile job",
		"job_id", payload.JobID,
		"mode", payload.Request.Mode,
		"rows", len(payload.Request.Rows),
	)

	summary, err := w.engine.Run(ctx, payload.Request)
	if err != nil {
		w.logger.Error("reconcile job failed", "error", err, "job_id", payload.JobID)
		if storeErr := w.jobs.MarkFailed(ctx, payload.JobID, err.Error()); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.JobID)
		}
	} else {
		if storeErr := w.jobs.MarkCompleted(ctx, payload.JobID, summary); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.JobID)
		}
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete reconcile job", "error", err)
	}
}
