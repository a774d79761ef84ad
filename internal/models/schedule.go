package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditSchedule runs an audit over a fixed device/rule scope on a cron
// expression. Submission goes through the same entry point as manual runs.
type AuditSchedule struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name" gorm:"uniqueIndex"`
	CronExpr  string    `json:"cron_expr"`
	DeviceIDs string    `json:"device_ids" gorm:"type:text"` // JSON array
	RuleIDs   string    `json:"rule_ids" gorm:"type:text"`   // JSON array
	Enabled   bool      `json:"enabled" gorm:"default:true"`
	LastRunID string    `json:"last_run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *AuditSchedule) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}
