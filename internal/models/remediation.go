package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Remediation outcomes.
const (
	RemediationApplied        = "applied"
	RemediationRejected       = "rejected"
	RemediationConnectorError = "connector_error"
)

// RemediationAction records one corrective payload pushed to a device for a
// failing check result. Never mutated after creation except to link the
// follow-up re-audit run.
type RemediationAction struct {
	ID           string `gorm:"primaryKey" json:"id"`
	RunID        string `json:"run_id" gorm:"index"` // the run whose failing result was targeted
	DeviceID     string `json:"device_id" gorm:"index"`
	CheckID      string `json:"check_id" gorm:"index"`
	Payload      string `json:"payload" gorm:"type:text"`
	Outcome      string `json:"outcome"`
	Detail       string `json:"detail,omitempty"`
	ReauditRunID string `json:"reaudit_run_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
}

func (a *RemediationAction) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}
