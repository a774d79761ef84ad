package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventLog records operator actions and engine milestones worth an audit
// trail: baseline replacements, remediation batches, run cancellations.
type EventLog struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (e *EventLog) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return
}
