package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeError   NotificationType = "error"
)

// Notification is an in-app notification row.
type Notification struct {
	ID        string           `gorm:"primaryKey" json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message" gorm:"type:text"`
	Read      bool             `json:"read" gorm:"default:false"`
	CreatedAt time.Time        `json:"created_at" gorm:"index"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}

// NotificationProvider is an external delivery target: a shoutrrr URL or a
// custom webhook with an optional template.
type NotificationProvider struct {
	ID      string `gorm:"primaryKey" json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // shoutrrr service name or "webhook"
	URL     string `json:"url"`
	Enabled bool   `json:"enabled" gorm:"default:true"`

	// Template selects "minimal", "detailed" or "custom"; Config holds the
	// custom template body.
	Template string `json:"template"`
	Config   string `json:"config" gorm:"type:text"`

	// Event preferences.
	NotifyAudits       bool `json:"notify_audits" gorm:"default:true"`
	NotifyRemediations bool `json:"notify_remediations" gorm:"default:true"`
	NotifyDrift        bool `json:"notify_drift" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *NotificationProvider) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}
