package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/playoffchallenge/backend/internal/config"
	"github.com/playoffchallenge/backend/internal/db"
	apphttp "github.com/playoffchallenge/backend/internal/http"
	"github.com/playoffchallenge/backend/internal/http/handlers"
	"github.com/playoffchallenge/backend/internal/repositories"
	"github.com/playoffchallenge/backend/internal/services"
	"github.com/playoffchallenge/backend/migrations"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	txm := db.NewTxManager(pool)
	contestRepo := repositories.NewContestRepo(pool)
	auditRepo := repositories.NewContestAuditRepo(pool)
	outboxRepo := repositories.NewOutboxRepo(pool)
	jobRepo := repositories.NewPayoutJobRepo(pool)
	transferRepo := repositories.NewPayoutTransferRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool)

	// Services
	lifecycle := services.NewContestLifecycleService(txm, contestRepo, auditRepo, outboxRepo, log)
	// The API only reads payout state; transfers are executed by the worker.
	payoutReader := services.NewPayoutJobService(txm, jobRepo, transferRepo, ledgerRepo, nil,
		cfg.PayoutTransferBatchSize, cfg.PayoutJobBatchSize, log)

	// Handlers
	contestHandler := handlers.NewContestHandler(lifecycle, log)
	payoutHandler := handlers.NewPayoutHandler(payoutReader, log)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, contestHandler, payoutHandler)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
