package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/playoffchallenge/backend/internal/config"
	"github.com/playoffchallenge/backend/internal/http/handlers"
	"github.com/playoffchallenge/backend/internal/middleware"
	"github.com/playoffchallenge/backend/internal/rbac"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	contestHandler *handlers.ContestHandler,
	payoutHandler *handlers.PayoutHandler,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	admin := app.Group("/api/v1/admin",
		middleware.AuthMiddleware(cfg, log),
		middleware.AdminMiddleware(cfg),
	)
	if rdb != nil {
		admin.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMin, time.Minute, log))
	}

	view := middleware.RequirePermission(cfg, rbac.PermViewContests)
	manage := middleware.RequirePermission(cfg, rbac.PermManageContests)
	viewPayouts := middleware.RequirePermission(cfg, rbac.PermViewPayouts)

	// Contest lifecycle
	admin.Get("/contests/:id", view, contestHandler.GetContest)
	admin.Get("/contests/:id/audit", view, contestHandler.ListAudit)
	admin.Post("/contests/:id/cancel", manage, contestHandler.Cancel)
	admin.Post("/contests/:id/force-lock", manage, contestHandler.ForceLock)
	admin.Post("/contests/:id/mark-error", manage, contestHandler.MarkError)
	admin.Post("/contests/:id/settle", manage, contestHandler.Settle)
	admin.Post("/contests/:id/resolve-error", manage, contestHandler.ResolveError)
	admin.Post("/contests/:id/update-times", manage, contestHandler.UpdateTimes)

	// Payouts
	admin.Get("/payouts/jobs/:id", viewPayouts, payoutHandler.GetJob)
	admin.Get("/payouts/transfers/:id/ledger", viewPayouts, payoutHandler.GetTransferLedger)
}
