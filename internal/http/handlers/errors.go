package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/apperr"
	"github.com/playoffchallenge/backend/internal/http/dto"
	"github.com/playoffchallenge/backend/internal/middleware"
	"go.uber.org/zap"
)

// writeError renders err as {error, error_code}. Errors without a code are
// logged and reported as INTERNAL without their message.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	e := apperr.As(err)
	if e.Code == apperr.CodeInternal {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	return c.Status(e.HTTPStatus()).JSON(dto.ErrorResponse{
		Error:     msg,
		ErrorCode: e.Code,
		Details:   e.Details,
		RequestID: middleware.GetRequestID(c),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		ErrorCode: apperr.CodeValidation,
		RequestID: middleware.GetRequestID(c),
	})
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(param))
	return id, err == nil
}
