package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditRun lifecycle states. Device-scoped failures never move a run to
// failed; that edge is reserved for fatal run-scoped conditions.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Audit trigger sources.
const (
	TriggerManual      = "manual"
	TriggerScheduled   = "scheduled"
	TriggerRemediation = "remediation"
)

// AuditRun is one scoped execution over a device set × rule set. It owns the
// CheckResults and per-device scores it produced.
type AuditRun struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	Status      string     `json:"status" gorm:"index"`
	Trigger     string     `json:"trigger"`
	DeviceIDs   string     `json:"device_ids" gorm:"type:text"` // JSON array
	RuleIDs     string     `json:"rule_ids" gorm:"type:text"`   // JSON array
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (r *AuditRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = RunPending
	}
	return
}

// CheckResult outcomes.
const (
	ResultPass  = "pass"
	ResultFail  = "fail"
	ResultError = "error"
)

// CheckResult is the immutable outcome of evaluating one (device, rule,
// check) triple within a run. Actual is nil only when retrieval genuinely
// returned nothing; it is preserved on both pass and fail for audit trails.
type CheckResult struct {
	ID       string  `gorm:"primaryKey" json:"id"`
	RunID    string  `json:"run_id" gorm:"index"`
	DeviceID string  `json:"device_id" gorm:"index"`
	RuleID   string  `json:"rule_id" gorm:"index"`
	CheckID  string  `json:"check_id" gorm:"index"`
	Status   string  `json:"status"`
	Actual   *string `json:"actual,omitempty" gorm:"type:text"`
	Detail   string  `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *CheckResult) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// DeviceScore is the compliance ratio for one device within a completed run.
type DeviceScore struct {
	ID       string `gorm:"primaryKey" json:"id"`
	RunID    string `json:"run_id" gorm:"index"`
	DeviceID string `json:"device_id" gorm:"index"`
	Passed   int    `json:"passed"`
	Total    int    `json:"total"`

	CreatedAt time.Time `json:"created_at"`
}

func (s *DeviceScore) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// Score returns passed/total, 0 for an empty check set.
func (s *DeviceScore) Score() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}
