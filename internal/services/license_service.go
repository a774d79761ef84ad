package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/models"
)

// ErrLicenseDenied is a fatal precondition: the run never starts.
var ErrLicenseDenied = errors.New("license denied")

// Settings keys consulted by the license gate.
const (
	settingLicenseMaxDevices = "license.max_devices"
	settingLicenseExpiresAt  = "license.expires_at"
)

// LicenseService answers "is this audit/remediation operation permitted".
// It is consulted only at the orchestration entry point, never mid-run.
type LicenseService struct {
	DB                *gorm.DB
	DefaultMaxDevices int
}

func NewLicenseService(db *gorm.DB, defaultMaxDevices int) *LicenseService {
	return &LicenseService{DB: db, DefaultMaxDevices: defaultMaxDevices}
}

// Authorize checks the device quota and license expiry for an operation over
// deviceCount devices.
func (s *LicenseService) Authorize(operation string, deviceCount int) error {
	if expiry, ok := s.setting(settingLicenseExpiresAt); ok {
		t, err := time.Parse(time.RFC3339, expiry)
		if err == nil && time.Now().After(t) {
			return fmt.Errorf("%w: license expired %s", ErrLicenseDenied, t.Format(time.RFC3339))
		}
	}

	max := s.DefaultMaxDevices
	if raw, ok := s.setting(settingLicenseMaxDevices); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			max = n
		}
	}
	if max > 0 && deviceCount > max {
		return fmt.Errorf("%w: %s over %d devices exceeds licensed quota of %d", ErrLicenseDenied, operation, deviceCount, max)
	}
	return nil
}

func (s *LicenseService) setting(key string) (string, bool) {
	var setting models.Setting
	if err := s.DB.First(&setting, "key = ?", key).Error; err != nil {
		return "", false
	}
	return setting.Value, true
}
