package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/apperr"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/playoffchallenge/backend/internal/repositories"
	"go.uber.org/zap"
)

// TransitionResult is the outcome of one transition request. Noop means the
// contest was already in the requested state. Changed is false when the
// conditional update lost to a concurrent writer.
type TransitionResult struct {
	Contest *models.Contest
	Changed bool
	Noop    bool
}

// AdvanceResult aggregates one automatic tick.
type AdvanceResult struct {
	Checked  int
	Advanced int
	Failed   int
}

// Actor identifies who requested a transition. A nil UserID is the system.
type Actor struct {
	UserID *uuid.UUID
	Reason string
}

type ContestLifecycleService struct {
	tx       Transactor
	contests ContestStore
	audit    ContestAuditStore
	outbox   OutboxStore
	log      *zap.Logger
	now      func() time.Time
	dueLimit int
}

func NewContestLifecycleService(
	tx Transactor,
	contests ContestStore,
	audit ContestAuditStore,
	outbox OutboxStore,
	log *zap.Logger,
) *ContestLifecycleService {
	return &ContestLifecycleService{
		tx:       tx,
		contests: contests,
		audit:    audit,
		outbox:   outbox,
		log:      log,
		now:      time.Now,
		dueLimit: 100,
	}
}

// transition describes one request against a contest row. Every status
// change, admin or automatic, goes through applyTransition.
type transition struct {
	contestID uuid.UUID
	action    models.ContestAction
	target    models.ContestStatus
	actor     Actor
	payload   map[string]any
	now       time.Time

	// next computes the target from the locked row. A nil status means
	// nothing is due.
	next func(c *models.Contest) (*models.ContestStatus, error)
	// precheck runs before the no-op check; check runs after the source
	// check. Errors from either are rejections.
	precheck func(c *models.Contest) error
	check    func(c *models.Contest) error
	// isNoop overrides the default "already at target" test.
	isNoop func(c *models.Contest) bool
	// noopBeforeSource answers a request for the current status as a no-op
	// even when the action is not allowed from that status.
	noopBeforeSource bool
	// write overrides the default status compare-and-set.
	write func(ctx context.Context, c *models.Contest) (bool, error)
}

type rejection struct {
	from models.ContestStatus
	err  error
}

func (s *ContestLifecycleService) applyTransition(ctx context.Context, t transition) (*TransitionResult, error) {
	var result *TransitionResult
	var rejected *rejection

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// 1. Lock the row
		c, err := s.contests.GetForUpdate(ctx, t.contestID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return apperr.NotFound(apperr.CodeContestNotFound, "contest %s not found", t.contestID)
			}
			return fmt.Errorf("lock contest: %w", err)
		}

		reject := func(err error) error {
			rejected = &rejection{from: c.Status, err: err}
			return err
		}

		if t.precheck != nil {
			if err := t.precheck(c); err != nil {
				return reject(err)
			}
		}

		// 2. Resolve the target
		to := t.target
		if t.next != nil {
			next, err := t.next(c)
			if err != nil {
				return err
			}
			if next == nil {
				result = &TransitionResult{Contest: c, Noop: true}
				return nil
			}
			to = *next
			t.target = to
		}

		noop := c.Status == to
		if t.isNoop != nil {
			noop = t.isNoop(c)
		}
		if noop && t.noopBeforeSource {
			result = &TransitionResult{Contest: c, Noop: true}
			return nil
		}

		// 3. Allowed source
		if !models.ActionAllowedFrom(t.action, c.Status) || (c.Status != to && !models.IsValidContestTransition(c.Status, to)) {
			if c.Status.IsTerminal() {
				return reject(apperr.InvalidTransition(apperr.CodeTerminalState,
					"contest is %s and cannot be changed", c.Status))
			}
			return reject(apperr.InvalidTransition(apperr.CodeInvalidStatus,
				"%s is not allowed from %s", t.action, c.Status))
		}

		// 4. Idempotent no-op
		if noop {
			result = &TransitionResult{Contest: c, Noop: true}
			return nil
		}
		if t.check != nil {
			if err := t.check(c); err != nil {
				return reject(err)
			}
		}

		// 5. Compare-and-set
		from := c.Status
		var changed bool
		if t.write != nil {
			changed, err = t.write(ctx, c)
		} else {
			changed, err = s.contests.CompareAndSetStatus(ctx, c, to, t.now)
		}
		if err != nil {
			return fmt.Errorf("update contest: %w", err)
		}
		if !changed {
			s.log.Info("contest transition lost race",
				zap.String("contest_id", c.ID.String()),
				zap.String("action", string(t.action)),
			)
			current, err := s.contests.GetByID(ctx, c.ID)
			if err != nil {
				return fmt.Errorf("reload contest: %w", err)
			}
			result = &TransitionResult{Contest: current}
			return nil
		}

		// 6. Audit
		if err := s.audit.Insert(ctx, &models.ContestAudit{
			ContestInstanceID: c.ID,
			AdminUserID:       t.actor.UserID,
			Action:            t.action,
			FromStatus:        from,
			ToStatus:          c.Status,
			Reason:            t.actor.Reason,
			Result:            models.AuditResultAccepted,
			Payload:           t.payload,
		}); err != nil {
			return fmt.Errorf("insert audit: %w", err)
		}

		// 7. Hand completed contests to settlement
		if c.Status == models.ContestStatusComplete && from != models.ContestStatusComplete {
			payload := map[string]any{
				"contest_id": c.ID.String(),
				"from":       string(from),
				"action":     string(t.action),
			}
			if c.SettleTime != nil {
				payload["settle_time"] = c.SettleTime.UTC().Format(time.RFC3339Nano)
			}
			if err := s.outbox.Enqueue(ctx, &models.OutboxEvent{
				EventType:   models.EventContestCompleted,
				AggregateID: c.ID,
				Payload:     payload,
			}); err != nil {
				return fmt.Errorf("enqueue %s: %w", models.EventContestCompleted, err)
			}
		}

		result = &TransitionResult{Contest: c, Changed: true}
		return nil
	})

	if rejected != nil {
		s.auditRejection(ctx, t, rejected)
		return nil, rejected.err
	}
	if err != nil {
		return nil, err
	}

	if result.Changed {
		s.log.Info("contest transitioned",
			zap.String("contest_id", t.contestID.String()),
			zap.String("action", string(t.action)),
			zap.String("status", string(result.Contest.Status)),
		)
	}
	return result, nil
}

// auditRejection records a refused request after the transaction has rolled
// back.
func (s *ContestLifecycleService) auditRejection(ctx context.Context, t transition, r *rejection) {
	payload := map[string]any{"error_code": apperr.As(r.err).Code}
	for k, v := range t.payload {
		payload[k] = v
	}
	err := s.audit.Insert(ctx, &models.ContestAudit{
		ContestInstanceID: t.contestID,
		AdminUserID:       t.actor.UserID,
		Action:            t.action,
		FromStatus:        r.from,
		ToStatus:          t.target,
		Reason:            t.actor.Reason,
		Result:            models.AuditResultRejected,
		Payload:           payload,
	})
	if err != nil {
		s.log.Error("failed to audit rejected transition",
			zap.String("contest_id", t.contestID.String()),
			zap.String("action", string(t.action)),
			zap.Error(err),
		)
	}
}

func (s *ContestLifecycleService) adminTransition(ctx context.Context, id uuid.UUID, action models.ContestAction, to models.ContestStatus, actor Actor) (*TransitionResult, error) {
	return s.applyTransition(ctx, transition{
		contestID: id,
		action:    action,
		target:    to,
		actor:     actor,
		now:       s.now(),
	})
}

// Cancel on an already CANCELLED contest is a no-op.
func (s *ContestLifecycleService) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*TransitionResult, error) {
	return s.applyTransition(ctx, transition{
		contestID:        id,
		action:           models.ActionCancel,
		target:           models.ContestStatusCancelled,
		actor:            actor,
		now:              s.now(),
		noopBeforeSource: true,
	})
}

func (s *ContestLifecycleService) ForceLock(ctx context.Context, id uuid.UUID, actor Actor) (*TransitionResult, error) {
	return s.adminTransition(ctx, id, models.ActionForceLock, models.ContestStatusLocked, actor)
}

func (s *ContestLifecycleService) MarkError(ctx context.Context, id uuid.UUID, actor Actor) (*TransitionResult, error) {
	return s.adminTransition(ctx, id, models.ActionMarkError, models.ContestStatusError, actor)
}

func (s *ContestLifecycleService) Settle(ctx context.Context, id uuid.UUID, actor Actor) (*TransitionResult, error) {
	return s.adminTransition(ctx, id, models.ActionSettle, models.ContestStatusComplete, actor)
}

// ResolveError moves an ERROR contest to COMPLETE or CANCELLED.
func (s *ContestLifecycleService) ResolveError(ctx context.Context, id uuid.UUID, to models.ContestStatus, actor Actor) (*TransitionResult, error) {
	return s.applyTransition(ctx, transition{
		contestID: id,
		action:    models.ActionResolveError,
		target:    to,
		actor:     actor,
		payload:   map[string]any{"to_status": string(to)},
		now:       s.now(),
		precheck: func(*models.Contest) error {
			if to != models.ContestStatusComplete && to != models.ContestStatusCancelled {
				return apperr.InvalidTransition(apperr.CodeInvalidTargetStatus,
					"to_status must be COMPLETE or CANCELLED, got %q", to)
			}
			return nil
		},
	})
}

// UpdateTimes rewrites the schedule of a SCHEDULED contest. Unset fields keep
// their current value; the merged schedule must satisfy
// lock_time <= start_time <= end_time.
func (s *ContestLifecycleService) UpdateTimes(ctx context.Context, id uuid.UUID, times models.ContestTimes, actor Actor) (*TransitionResult, error) {
	if times.IsEmpty() {
		return nil, apperr.Validation("at least one of lock_time, start_time, end_time is required")
	}
	var merged models.ContestTimes
	return s.applyTransition(ctx, transition{
		contestID: id,
		action:    models.ActionUpdateTimes,
		target:    models.ContestStatusScheduled,
		actor:     actor,
		payload:   timesPayload(times),
		now:       s.now(),
		isNoop: func(c *models.Contest) bool {
			merged = c.ApplyTimes(times)
			return c.Status == models.ContestStatusScheduled &&
				sameTime(merged.LockTime, c.LockTime) &&
				sameTime(merged.StartTime, c.StartTime) &&
				sameTime(merged.EndTime, c.EndTime)
		},
		check: func(*models.Contest) error {
			if err := models.ValidateTimeOrder(merged); err != nil {
				return apperr.InvalidTransition(apperr.CodeInvalidTimes, "%s", err.Error())
			}
			return nil
		},
		write: func(ctx context.Context, c *models.Contest) (bool, error) {
			return s.contests.UpdateTimes(ctx, c, merged)
		},
	})
}

// Advance applies the time-driven transition of one contest, if one is due.
func (s *ContestLifecycleService) Advance(ctx context.Context, id uuid.UUID, now time.Time) (*TransitionResult, error) {
	return s.applyTransition(ctx, transition{
		contestID: id,
		action:    models.ActionAutoAdvance,
		actor:     Actor{Reason: "scheduled"},
		now:       now,
		next: func(c *models.Contest) (*models.ContestStatus, error) {
			return models.NextAutoStatus(c.Status, c.StartTime, c.EndTime, now)
		},
	})
}

// AdvanceDue advances every contest whose start or end time has passed. One
// contest failing does not stop the others.
func (s *ContestLifecycleService) AdvanceDue(ctx context.Context, now time.Time) (AdvanceResult, error) {
	var res AdvanceResult
	ids, err := s.contests.ListDue(ctx, now, s.dueLimit)
	if err != nil {
		return res, fmt.Errorf("list due contests: %w", err)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		r, err := s.Advance(ctx, id, now)
		if err != nil {
			res.Failed++
			s.log.Warn("auto-advance failed", zap.String("contest_id", id.String()), zap.Error(err))
			continue
		}
		if r.Changed {
			res.Advanced++
		}
	}
	return res, nil
}

func (s *ContestLifecycleService) GetContest(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	c, err := s.contests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeContestNotFound, "contest %s not found", id)
		}
		return nil, err
	}
	return c, nil
}

// ListAudit returns the contest's audit trail, newest first.
func (s *ContestLifecycleService) ListAudit(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.ContestAudit, error) {
	if _, err := s.GetContest(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.ListByContest(ctx, id, limit, offset)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func timesPayload(t models.ContestTimes) map[string]any {
	p := map[string]any{}
	if t.LockTime != nil {
		p["lock_time"] = t.LockTime.UTC().Format(time.RFC3339)
	}
	if t.StartTime != nil {
		p["start_time"] = t.StartTime.UTC().Format(time.RFC3339)
	}
	if t.EndTime != nil {
		p["end_time"] = t.EndTime.UTC().Format(time.RFC3339)
	}
	return p
}
