package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConfigSnapshot is the full configuration text captured from a device during
// an audit. At most one snapshot per device carries the baseline flag.
type ConfigSnapshot struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	DeviceID   string    `json:"device_id" gorm:"index"`
	Content    string    `json:"content" gorm:"type:text"`
	IsBaseline bool      `json:"is_baseline" gorm:"index"`
	TakenAt    time.Time `json:"taken_at" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
}

func (s *ConfigSnapshot) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.TakenAt.IsZero() {
		s.TakenAt = time.Now()
	}
	return
}

// Drift severity classes. The lines-changed threshold separating them is a
// policy input, not a constant.
const (
	DriftSeverityLow  = "low"
	DriftSeverityHigh = "high"
)

// DriftRecord is produced only when a device's latest snapshot differs from
// its baseline. No drift, no record.
type DriftRecord struct {
	ID           string `gorm:"primaryKey" json:"id"`
	DeviceID     string `json:"device_id" gorm:"index"`
	SnapshotID   string `json:"snapshot_id"`
	BaselineID   string `json:"baseline_id"`
	LinesChanged int    `json:"lines_changed"`
	Severity     string `json:"severity"`

	CreatedAt time.Time `json:"created_at"`
}

func (d *DriftRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return
}
