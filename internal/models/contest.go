package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ContestStatus string

// Contest statuses
const (
	ContestStatusScheduled ContestStatus = "SCHEDULED"
	ContestStatusLocked    ContestStatus = "LOCKED"
	ContestStatusLive      ContestStatus = "LIVE"
	ContestStatusComplete  ContestStatus = "COMPLETE"
	ContestStatusCancelled ContestStatus = "CANCELLED"
	ContestStatusError     ContestStatus = "ERROR"
)

// Valid state transitions: from -> []to
var ValidContestTransitions = map[ContestStatus][]ContestStatus{
	ContestStatusScheduled: {ContestStatusLocked, ContestStatusLive, ContestStatusCancelled},
	ContestStatusLocked:    {ContestStatusLive, ContestStatusCancelled},
	ContestStatusLive:      {ContestStatusComplete, ContestStatusError},
	ContestStatusError:     {ContestStatusComplete, ContestStatusCancelled},
	ContestStatusComplete:  {},
	ContestStatusCancelled: {},
}

func (s ContestStatus) Valid() bool {
	_, ok := ValidContestTransitions[s]
	return ok
}

// IsTerminal reports COMPLETE and CANCELLED, which are never left.
func (s ContestStatus) IsTerminal() bool {
	return s == ContestStatusComplete || s == ContestStatusCancelled
}

func IsValidContestTransition(from, to ContestStatus) bool {
	for _, s := range ValidContestTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ContestAction names an admin-forced or automatic transition request.
type ContestAction string

const (
	ActionCancel       ContestAction = "cancel"
	ActionForceLock    ContestAction = "force_lock"
	ActionMarkError    ContestAction = "mark_error"
	ActionSettle       ContestAction = "settle"
	ActionResolveError ContestAction = "resolve_error"
	ActionUpdateTimes  ContestAction = "update_times"
	ActionAutoAdvance  ContestAction = "auto_advance"
)

// ActionSources lists the statuses each action may start from.
var ActionSources = map[ContestAction][]ContestStatus{
	ActionCancel:       {ContestStatusScheduled, ContestStatusLocked, ContestStatusError},
	ActionForceLock:    {ContestStatusScheduled},
	ActionMarkError:    {ContestStatusLive},
	ActionSettle:       {ContestStatusLive},
	ActionResolveError: {ContestStatusError},
	ActionUpdateTimes:  {ContestStatusScheduled},
	ActionAutoAdvance:  {ContestStatusScheduled, ContestStatusLocked, ContestStatusLive},
}

func ActionAllowedFrom(action ContestAction, from ContestStatus) bool {
	for _, s := range ActionSources[action] {
		if s == from {
			return true
		}
	}
	return false
}

var ErrMissingTimestamp = errors.New("contest is missing a required timestamp")

// NextAutoStatus computes the time-driven successor of status. It returns nil
// when no transition is due. SCHEDULED and LOCKED contests go LIVE at
// start_time; LIVE contests COMPLETE at end_time.
func NextAutoStatus(status ContestStatus, startTime, endTime *time.Time, now time.Time) (*ContestStatus, error) {
	switch status {
	case ContestStatusScheduled, ContestStatusLocked:
		if startTime == nil {
			return nil, fmt.Errorf("%w: start_time required for %s", ErrMissingTimestamp, status)
		}
		if !now.Before(*startTime) {
			next := ContestStatusLive
			return &next, nil
		}
		return nil, nil
	case ContestStatusLive:
		if endTime == nil {
			return nil, fmt.Errorf("%w: end_time required for %s", ErrMissingTimestamp, status)
		}
		if !now.Before(*endTime) {
			next := ContestStatusComplete
			return &next, nil
		}
		return nil, nil
	default:
		return nil, nil
	}
}

// PayoutPlace is one row of a contest payout structure.
type PayoutPlace struct {
	Place      int    `json:"place"`
	Percentage string `json:"percentage"` // decimal, e.g. "50" or "12.5"
}

type Contest struct {
	ID              uuid.UUID     `json:"id"`
	TemplateID      uuid.UUID     `json:"template_id"`
	OrganizerID     uuid.UUID     `json:"organizer_id"`
	Status          ContestStatus `json:"status"`
	LockTime        *time.Time    `json:"lock_time,omitempty"`
	StartTime       *time.Time    `json:"start_time,omitempty"`
	EndTime         *time.Time    `json:"end_time,omitempty"`
	SettleTime      *time.Time    `json:"settle_time,omitempty"`
	PrizePoolCents  int64         `json:"prize_pool_cents"`
	PayoutStructure []PayoutPlace `json:"payout_structure"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ContestTimes is a partial update of the schedule. SettleTime is not part
// of it: only the COMPLETE transition writes that column.
type ContestTimes struct {
	LockTime  *time.Time `json:"lock_time,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

func (t ContestTimes) IsEmpty() bool {
	return t.LockTime == nil && t.StartTime == nil && t.EndTime == nil
}

// ApplyTimes merges the non-nil fields of t over the contest's schedule.
func (c *Contest) ApplyTimes(t ContestTimes) ContestTimes {
	merged := ContestTimes{LockTime: c.LockTime, StartTime: c.StartTime, EndTime: c.EndTime}
	if t.LockTime != nil {
		merged.LockTime = t.LockTime
	}
	if t.StartTime != nil {
		merged.StartTime = t.StartTime
	}
	if t.EndTime != nil {
		merged.EndTime = t.EndTime
	}
	return merged
}

// ValidateTimeOrder checks lock_time <= start_time <= end_time over the
// fields that are set.
func ValidateTimeOrder(t ContestTimes) error {
	if t.LockTime != nil && t.StartTime != nil && t.LockTime.After(*t.StartTime) {
		return fmt.Errorf("lock_time must not be after start_time")
	}
	if t.StartTime != nil && t.EndTime != nil && t.StartTime.After(*t.EndTime) {
		return fmt.Errorf("start_time must not be after end_time")
	}
	if t.LockTime != nil && t.EndTime != nil && t.LockTime.After(*t.EndTime) {
		return fmt.Errorf("lock_time must not be after end_time")
	}
	return nil
}
