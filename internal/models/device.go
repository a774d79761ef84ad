package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vendor identifies the platform a device runs. The set is closed: every
// vendor maps to exactly one connector capability.
type Vendor string

const (
	VendorIOSXE   Vendor = "iosxe"
	VendorNXOS    Vendor = "nxos"
	VendorJunOS   Vendor = "junos"
	VendorNetconf Vendor = "netconf"
)

// Capability describes which query style a device's connector speaks.
type Capability string

const (
	// CapStructured devices answer hierarchical path + filter queries (RESTCONF-style).
	CapStructured Capability = "structured"
	// CapSubtree devices answer raw subtree filter documents (NETCONF-style).
	CapSubtree Capability = "subtree"
)

// Capability returns the connector capability for the vendor, false for
// vendors outside the closed set.
func (v Vendor) Capability() (Capability, bool) {
	switch v {
	case VendorIOSXE, VendorNXOS:
		return CapStructured, true
	case VendorJunOS, VendorNetconf:
		return CapSubtree, true
	}
	return "", false
}

// Device is a network device under audit. Records are owned by the device
// registry; the audit engine only ever reads them.
type Device struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Name         string    `json:"name" gorm:"index"`
	Vendor       Vendor    `json:"vendor"`
	Address      string    `json:"address"`
	Port         int       `json:"port"`
	CredentialID string    `json:"credential_id" gorm:"index"`
	Enabled      bool      `json:"enabled" gorm:"default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return
}

// Credential holds transport credentials referenced by devices.
type Credential struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name" gorm:"uniqueIndex"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Credential) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}
