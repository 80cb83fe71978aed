package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/apperr"
	"github.com/playoffchallenge/backend/internal/auth"
	"github.com/playoffchallenge/backend/internal/config"
	"github.com/playoffchallenge/backend/internal/rbac"
	"go.uber.org/zap"
)

const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return deny(c, fiber.StatusUnauthorized, apperr.CodeUnauthorized, "missing authorization header")
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return deny(c, fiber.StatusUnauthorized, apperr.CodeUnauthorized, "invalid authorization format")
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return deny(c, fiber.StatusUnauthorized, apperr.CodeUnauthorized, "invalid or expired token")
		}

		c.Locals(CtxUserID, claims.UserID)
		c.Locals(CtxRole, claims.Role)

		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxUserID).(uuid.UUID)
	return id
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	return role
}

// AdminMiddleware admits users listed in ADMIN_USER_IDS and tokens carrying
// a staff role.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.IsAdmin(GetUserID(c)) && !rbac.IsStaff(GetRole(c)) {
			return deny(c, fiber.StatusForbidden, apperr.CodeForbidden, "admin access required")
		}
		return c.Next()
	}
}

// RequirePermission must run after AdminMiddleware. Listed admins pass every
// check.
func RequirePermission(cfg *config.Config, perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.IsAdmin(GetUserID(c)) && !rbac.HasPermission(GetRole(c), perm) {
			return deny(c, fiber.StatusForbidden, apperr.CodeForbidden, "missing permission "+perm)
		}
		return c.Next()
	}
}

func deny(c *fiber.Ctx, status int, code, msg string) error {
	body := fiber.Map{"error": msg, "error_code": code}
	if reqID, ok := c.Locals(CtxRequestID).(string); ok {
		body["request_id"] = reqID
	}
	return c.Status(status).JSON(body)
}
