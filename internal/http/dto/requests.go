package dto

import (
	"encoding/json"
	"time"
)

type TransitionRequest struct {
	Reason string `json:"reason"`
}

type ResolveErrorRequest struct {
	ToStatus string `json:"to_status"`
	Reason   string `json:"reason"`
}

// UpdateTimesRequest is a partial schedule update. SettleTime is only
// decoded so that a request carrying it can be refused.
type UpdateTimesRequest struct {
	LockTime   *time.Time      `json:"lock_time,omitempty"`
	StartTime  *time.Time      `json:"start_time,omitempty"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
	SettleTime json.RawMessage `json:"settle_time,omitempty"`
	Reason     string          `json:"reason"`
}
