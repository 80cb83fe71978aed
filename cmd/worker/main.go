package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playoffchallenge/backend/internal/config"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/events"
	"github.com/playoffchallenge/backend/internal/repositories"
	"github.com/playoffchallenge/backend/internal/scheduler"
	"github.com/playoffchallenge/backend/internal/services"
	"github.com/playoffchallenge/backend/internal/settlement"
	"github.com/playoffchallenge/backend/internal/stripeadapter"
	"github.com/playoffchallenge/backend/migrations"
	"go.uber.org/zap"
)

const shutdownGrace = 30 * time.Second

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	txm := db.NewTxManager(pool)
	contestRepo := repositories.NewContestRepo(pool)
	auditRepo := repositories.NewContestAuditRepo(pool)
	outboxRepo := repositories.NewOutboxRepo(pool)
	settlementRepo := repositories.NewSettlementRepo(pool)
	scoreRepo := repositories.NewScoreRepo(pool)
	jobRepo := repositories.NewPayoutJobRepo(pool)
	transferRepo := repositories.NewPayoutTransferRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool)
	accountRepo := repositories.NewPayoutAccountRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	stripe := stripeadapter.New(cfg.StripeSecretKey, cfg.StripeCurrency, cfg.StripeRatePerSec, cfg.StripeTimeout, log)

	lifecycle := services.NewContestLifecycleService(txm, contestRepo, auditRepo, outboxRepo, log)
	engine := settlement.NewEngine(txm, contestRepo, scoreRepo, settlementRepo, log)
	orchestrator := services.NewPayoutOrchestrationService(txm, jobRepo, transferRepo, cfg.PayoutMaxAttempts, log)
	dispatcher := services.NewOutboxDispatcher(txm, outboxRepo, engine, orchestrator, publisher,
		cfg.OutboxBatchSize, cfg.OutboxMaxAttempts, log)
	executor := services.NewPayoutExecutionService(txm, transferRepo, ledgerRepo, accountRepo, stripe, log)
	payouts := services.NewPayoutJobService(txm, jobRepo, transferRepo, ledgerRepo, executor,
		cfg.PayoutTransferBatchSize, cfg.PayoutJobBatchSize, log)

	runner := scheduler.New(ctx, log)
	mustAdd(runner, log, "lifecycle", cfg.SchedulerLifecycleInterval, func(ctx context.Context) error {
		res, err := lifecycle.AdvanceDue(ctx, time.Now())
		if res.Advanced > 0 || res.Failed > 0 {
			log.Info("lifecycle tick",
				zap.Int("checked", res.Checked),
				zap.Int("advanced", res.Advanced),
				zap.Int("failed", res.Failed),
			)
		}
		return err
	})
	mustAdd(runner, log, "outbox", cfg.SchedulerOutboxInterval, func(ctx context.Context) error {
		res, err := dispatcher.DispatchPending(ctx)
		if res.Dispatched > 0 || res.Failed > 0 {
			log.Info("outbox drained",
				zap.Int("dispatched", res.Dispatched),
				zap.Int("failed", res.Failed),
				zap.Int("parked", res.Parked),
			)
		}
		return err
	})
	mustAdd(runner, log, "payouts", cfg.SchedulerPayoutInterval, func(ctx context.Context) error {
		res, err := payouts.ProcessPendingJobs(ctx)
		if res.Jobs > 0 {
			log.Info("payout jobs processed",
				zap.Int("jobs", res.Jobs),
				zap.Int("completed", res.JobsCompleted),
				zap.Int("attempted", res.Attempted),
				zap.Int("transfer_errors", res.TransferErrors),
				zap.Int("errors", len(res.Errors)),
			)
		}
		return err
	})

	runner.Start()
	log.Info("worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()
	runner.Stop(stopCtx)
	cancel()
}

func mustAdd(r *scheduler.Runner, log *zap.Logger, name, spec string, task scheduler.Task) {
	if _, err := r.Add(name, spec, task); err != nil {
		log.Fatal("invalid schedule", zap.String("task", name), zap.String("spec", spec), zap.Error(err))
	}
}
