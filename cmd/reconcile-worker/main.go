package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TCaken/loancrm/cmd/mainconfig"
	"github.com/TCaken/loancrm/internal/appointment"
	"github.com/TCaken/loancrm/internal/borrowers"
	"github.com/TCaken/loancrm/internal/clock"
	appconfig "github.com/TCaken/loancrm/internal/config"
	"github.com/TCaken/loancrm/internal/leads"
	"github.com/TCaken/loancrm/internal/notify"
	"github.com/TCaken/loancrm/internal/observability/metrics"
	"github.com/TCaken/loancrm/internal/reconcile"
	"github.com/TCaken/loancrm/internal/timeslot"
	reconcileworker "github.com/TCaken/loancrm/internal/worker/reconcile"
	"github.com/TCaken/loancrm/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	clk := clock.System{}
	loc := clock.NewLocation("Asia/Singapore", cfg.LocalTZOffsetHours)
	engineMetrics := metrics.NewEngineMetrics(nil)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	slotStore := timeslot.NewStore(pool, cfg.SlotSearchHorizonDays, logger)
	leadStore := leads.NewStore(pool)
	borrowerStore := borrowers.NewStore(pool)
	apptService := appointment.NewService(pool, slotStore, leadStore, borrowerStore, clk, loc, engineMetrics, logger)

	var rejectionNotifier notify.RejectionNotifier
	if cfg.RejectionWebhookURL != "" {
		rejectionNotifier = notify.NewWebhookDispatcher(cfg.RejectionWebhookURL, cfg.RejectionWebhookToken, logger)
	}
	rejections := notify.NewDispatcher(notify.NewLedger(pool), rejectionNotifier, engineMetrics, logger)

	engine := reconcile.NewEngine(
		apptService,
		leadStore,
		borrowerStore,
		slotStore,
		rejections,
		clk,
		loc,
		cfg.RealtimeThresholdHours,
		engineMetrics,
		logger,
	)

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	queue := reconcile.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.ReconcileQueueURL)
	jobStore := reconcile.NewJobStore(dynamodb.NewFromConfig(awsConfig), cfg.ReconcileJobsTable, logger)

	worker := reconcileworker.New(
		engine,
		queue,
		jobStore,
		logger,
		reconcileworker.WithWorkerCount(cfg.WorkerCount),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker.Start(workerCtx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down reconcile worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("reconcile worker stopped")
	case <-doneCtx.Done():
		logger.Error("reconcile worker shutdown timed out", "error", doneCtx.Err())
	}
}
