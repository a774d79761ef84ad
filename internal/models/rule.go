package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Query styles a check may use. A check is only evaluable against devices
// whose connector capability matches.
const (
	QueryStructured = "structured"
	QuerySubtree    = "subtree"
)

// Match semantics for a check.
const (
	MatchExists  = "exists"
	MatchEquals  = "equals"
	MatchPattern = "pattern"
)

// Rule is a named set of checks evaluated together.
type Rule struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `json:"name" gorm:"uniqueIndex"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled" gorm:"default:true"`
	Checks      []Check   `json:"checks,omitempty" gorm:"foreignKey:RuleID"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *Rule) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// Check is a single comparison against device configuration. Position fixes
// the evaluation order within a rule; later checks may assume the session is
// quiescent after earlier ones.
type Check struct {
	ID       string `gorm:"primaryKey" json:"id"`
	RuleID   string `json:"rule_id" gorm:"index"`
	Name     string `json:"name"`
	Position int    `json:"position" gorm:"index"`

	// Query descriptor: structured checks carry Path + Filter (a JSON tree),
	// subtree checks carry a raw XML filter document.
	Query   string `json:"query"`
	Path    string `json:"path"`
	Filter  string `json:"filter" gorm:"type:text"`
	Subtree string `json:"subtree" gorm:"type:text"`

	// Expected-value descriptor.
	Match    string `json:"match"`
	Expected string `json:"expected" gorm:"type:text"`

	// Reference payload pushed by the remediation engine when this check fails.
	Remediation string `json:"remediation" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Check) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}
