package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditResultAccepted = "accepted"
	AuditResultRejected = "rejected"
)

// ContestAudit is one row of admin_contest_audit. Rows are never updated.
type ContestAudit struct {
	ID                uuid.UUID      `json:"id"`
	ContestInstanceID uuid.UUID      `json:"contest_instance_id"`
	AdminUserID       *uuid.UUID     `json:"admin_user_id,omitempty"` // nil for system transitions
	Action            ContestAction  `json:"action"`
	FromStatus        ContestStatus  `json:"from_status"`
	ToStatus          ContestStatus  `json:"to_status"`
	Reason            string         `json:"reason"`
	Result            string         `json:"result"`
	Payload           map[string]any `json:"payload,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
