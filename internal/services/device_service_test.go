package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwarden/netwarden/internal/models"
)

func TestDeviceService_VendorValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDeviceService(db)

	err := svc.Create(&models.Device{Name: "sw-1", Vendor: "ios-classic", Address: "192.0.2.1"})
	assert.ErrorIs(t, err, ErrUnknownVendor)

	dev := models.Device{Name: "sw-1", Vendor: models.VendorNXOS, Address: "192.0.2.1", Enabled: true}
	require.NoError(t, svc.Create(&dev))
	assert.NotEmpty(t, dev.ID)

	dev.Vendor = "mystery"
	assert.ErrorIs(t, svc.Update(&dev), ErrUnknownVendor)
}

func TestDeviceService_CredentialDeleteGuard(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDeviceService(db)

	cred := models.Credential{Name: "lab", Username: "audit", Password: "x"}
	require.NoError(t, svc.CreateCredential(&cred))

	dev := models.Device{Name: "sw-1", Vendor: models.VendorJunOS, Address: "192.0.2.1", CredentialID: cred.ID}
	require.NoError(t, svc.Create(&dev))

	// In use: refuse.
	assert.Error(t, svc.DeleteCredential(cred.ID))

	require.NoError(t, svc.Delete(dev.ID))
	assert.NoError(t, svc.DeleteCredential(cred.ID))
}

func TestLicenseService_Quota(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLicenseService(db, 2)

	assert.NoError(t, svc.Authorize("audit", 2))
	assert.ErrorIs(t, svc.Authorize("audit", 3), ErrLicenseDenied)

	// A stored setting overrides the default quota.
	require.NoError(t, db.Create(&models.Setting{Key: "license.max_devices", Value: "5"}).Error)
	assert.NoError(t, svc.Authorize("audit", 5))
}

func TestLicenseService_Expiry(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLicenseService(db, 100)

	require.NoError(t, db.Create(&models.Setting{Key: "license.expires_at", Value: "2001-01-01T00:00:00Z"}).Error)
	assert.ErrorIs(t, svc.Authorize("audit", 1), ErrLicenseDenied)
}
