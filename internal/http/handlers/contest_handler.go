package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/http/dto"
	"github.com/playoffchallenge/backend/internal/middleware"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/playoffchallenge/backend/internal/services"
	"go.uber.org/zap"
)

// ContestAdmin is the lifecycle surface the admin API drives. It is
// satisfied by *services.ContestLifecycleService.
type ContestAdmin interface {
	Cancel(ctx context.Context, id uuid.UUID, actor services.Actor) (*services.TransitionResult, error)
	ForceLock(ctx context.Context, id uuid.UUID, actor services.Actor) (*services.TransitionResult, error)
	MarkError(ctx context.Context, id uuid.UUID, actor services.Actor) (*services.TransitionResult, error)
	Settle(ctx context.Context, id uuid.UUID, actor services.Actor) (*services.TransitionResult, error)
	ResolveError(ctx context.Context, id uuid.UUID, to models.ContestStatus, actor services.Actor) (*services.TransitionResult, error)
	UpdateTimes(ctx context.Context, id uuid.UUID, times models.ContestTimes, actor services.Actor) (*services.TransitionResult, error)
	GetContest(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	ListAudit(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.ContestAudit, error)
}

type ContestHandler struct {
	contests ContestAdmin
	log      *zap.Logger
}

func NewContestHandler(contests ContestAdmin, log *zap.Logger) *ContestHandler {
	return &ContestHandler{contests: contests, log: log}
}

type transitionFunc func(ctx context.Context, id uuid.UUID, actor services.Actor) (*services.TransitionResult, error)

func (h *ContestHandler) transition(fn transitionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return badRequest(c, "invalid contest id")
		}
		var req dto.TransitionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid request")
			}
		}

		res, err := fn(c.Context(), id, actorFrom(c, req.Reason))
		if err != nil {
			return writeError(c, h.log, err)
		}
		return c.JSON(transitionResponse(res))
	}
}

func (h *ContestHandler) Cancel(c *fiber.Ctx) error    { return h.transition(h.contests.Cancel)(c) }
func (h *ContestHandler) ForceLock(c *fiber.Ctx) error { return h.transition(h.contests.ForceLock)(c) }
func (h *ContestHandler) MarkError(c *fiber.Ctx) error { return h.transition(h.contests.MarkError)(c) }
func (h *ContestHandler) Settle(c *fiber.Ctx) error    { return h.transition(h.contests.Settle)(c) }

func (h *ContestHandler) ResolveError(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid contest id")
	}
	var req dto.ResolveErrorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.ToStatus == "" {
		return badRequest(c, "to_status is required")
	}

	to := models.ContestStatus(strings.ToUpper(strings.TrimSpace(req.ToStatus)))
	res, err := h.contests.ResolveError(c.Context(), id, to, actorFrom(c, req.Reason))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(transitionResponse(res))
}

func (h *ContestHandler) UpdateTimes(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid contest id")
	}
	var req dto.UpdateTimesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if len(req.SettleTime) > 0 {
		return badRequest(c, "settle_time cannot be set")
	}

	times := models.ContestTimes{LockTime: req.LockTime, StartTime: req.StartTime, EndTime: req.EndTime}
	res, err := h.contests.UpdateTimes(c.Context(), id, times, actorFrom(c, req.Reason))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(transitionResponse(res))
}

func (h *ContestHandler) GetContest(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid contest id")
	}
	contest, err := h.contests.GetContest(c.Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.ContestResponse{Contest: contest})
}

func (h *ContestHandler) ListAudit(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid contest id")
	}
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	rows, err := h.contests.ListAudit(c.Context(), id, limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if rows == nil {
		rows = []models.ContestAudit{}
	}
	return c.JSON(dto.AuditResponse{Audit: rows})
}

func actorFrom(c *fiber.Ctx, reason string) services.Actor {
	actor := services.Actor{Reason: strings.TrimSpace(reason)}
	if id := middleware.GetUserID(c); id != uuid.Nil {
		actor.UserID = &id
	}
	return actor
}

func transitionResponse(res *services.TransitionResult) dto.TransitionResponse {
	return dto.TransitionResponse{
		Success: true,
		Contest: res.Contest,
		Noop:    res.Noop,
		Changed: res.Changed,
	}
}
