package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/TCaken/loancrm/cmd/mainconfig"
	"github.com/TCaken/loancrm/internal/api/router"
	"github.com/TCaken/loancrm/internal/appointment"
	"github.com/TCaken/loancrm/internal/assignments"
	"github.com/TCaken/loancrm/internal/borrowers"
	"github.com/TCaken/loancrm/internal/clock"
	appconfig "github.com/TCaken/loancrm/internal/config"
	"github.com/TCaken/loancrm/internal/feedarchive"
	"github.com/TCaken/loancrm/internal/http/handlers"
	"github.com/TCaken/loancrm/internal/leads"
	"github.com/TCaken/loancrm/internal/notify"
	"github.com/TCaken/loancrm/internal/observability/metrics"
	"github.com/TCaken/loancrm/internal/reconcile"
	"github.com/TCaken/loancrm/internal/reports"
	"github.com/TCaken/loancrm/internal/timeslot"
	reconcileworker "github.com/TCaken/loancrm/internal/worker/reconcile"
	"github.com/TCaken/loancrm/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting loancrm API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	clk := clock.System{}
	loc := clock.NewLocation("Asia/Singapore", cfg.LocalTZOffsetHours)
	engineMetrics := metrics.NewEngineMetrics(nil)

	// Postgres: pgx pool for the domain stores, database/sql for the
	// assignment audit log.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()

	slotStore := timeslot.NewStore(pool, cfg.SlotSearchHorizonDays, logger)
	leadStore := leads.NewStore(pool)
	borrowerStore := borrowers.NewStore(pool)
	assignmentStore := assignments.NewStore(auditDB)

	apptService := appointment.NewService(pool, slotStore, leadStore, borrowerStore, clk, loc, engineMetrics, logger)

	// Rejection notifications: exactly-once via the Postgres ledger, delivery
	// via the CRM webhook when configured.
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

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	jobStore := reconcile.NewJobStore(dynamoClient, cfg.ReconcileJobsTable, logger)

	var queue reconcile.Queue
	if cfg.UseMemoryQueue {
		queue = reconcile.NewMemoryQueue(64)
	} else {
		queue = reconcile.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ReconcileQueueURL)
	}

	archive := feedarchive.NewArchive(s3.NewFromConfig(awsCfg), cfg.FeedArchiveBucket, logger)
	publisher := reconcile.NewPublisher(queue, jobStore, archive, logger)

	// With the in-memory queue there is no separate worker binary, so drain
	// jobs in-process.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	var worker *reconcileworker.Worker
	if cfg.UseMemoryQueue {
		worker = reconcileworker.New(engine, queue, jobStore, logger,
			reconcileworker.WithWorkerCount(cfg.WorkerCount),
		)
		worker.Start(workerCtx)
	}

	var summaries handlers.SummarySink
	var summaryReader handlers.SummaryReader
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cache := reports.NewSummaryCache(redis.NewClient(opts), logger)
		summaries = cache
		summaryReader = cache
	}

	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			emailSender = s
		}
	case "ses":
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			emailSender = s
		}
	}
	mailer := reconcile.NewSummaryMailer(emailSender, cfg.SummaryEmailRecipients, logger)

	reconcileHandler := handlers.NewReconcileHandler(
		engine,
		publisher,
		jobStore,
		summaries,
		mailer,
		cfg.RealtimeThresholdHours,
		cfg.EODThresholdHours,
		logger,
	)
	appointmentsHandler := handlers.NewAppointmentsHandler(apptService, assignmentStore, logger)
	timeslotsHandler := handlers.NewTimeslotsHandler(slotStore, clk, loc, logger)
	dashboardHandler := handlers.NewDashboardHandler(apptService, slotStore, summaryReader, prometheus.DefaultGatherer, clk, loc, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		Reconcile:          reconcileHandler,
		Appointments:       appointmentsHandler,
		Timeslots:          timeslotsHandler,
		Dashboard:          dashboardHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		FeedAPIKey:         cfg.FeedAPIKey,
		FeedRateLimit:      cfg.FeedRateLimit,
		FeedRateBurst:      cfg.FeedRateBurst,
		AgentJWTSecret:     cfg.AgentJWTSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if worker != nil {
		stopWorker()
		worker.Wait()
	}

	logger.Info("server stopped")
}
