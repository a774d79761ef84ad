package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/models"
)

// ErrUnknownVendor rejects devices outside the closed vendor set.
var ErrUnknownVendor = errors.New("unknown vendor")

// DeviceService is the device registry boundary. The audit engine reads
// devices through it and never mutates them mid-run.
type DeviceService struct {
	DB *gorm.DB
}

func NewDeviceService(db *gorm.DB) *DeviceService {
	return &DeviceService{DB: db}
}

func (s *DeviceService) List() ([]models.Device, error) {
	var devices []models.Device
	return devices, s.DB.Order("name ASC").Find(&devices).Error
}

func (s *DeviceService) Get(id string) (*models.Device, error) {
	var device models.Device
	if err := s.DB.First(&device, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *DeviceService) Create(device *models.Device) error {
	if _, ok := device.Vendor.Capability(); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVendor, device.Vendor)
	}
	return s.DB.Create(device).Error
}

func (s *DeviceService) Update(device *models.Device) error {
	if _, ok := device.Vendor.Capability(); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVendor, device.Vendor)
	}
	return s.DB.Save(device).Error
}

func (s *DeviceService) Delete(id string) error {
	return s.DB.Delete(&models.Device{}, "id = ?", id).Error
}

// Credentials.

func (s *DeviceService) ListCredentials() ([]models.Credential, error) {
	var creds []models.Credential
	return creds, s.DB.Order("name ASC").Find(&creds).Error
}

func (s *DeviceService) CreateCredential(cred *models.Credential) error {
	return s.DB.Create(cred).Error
}

func (s *DeviceService) DeleteCredential(id string) error {
	var count int64
	s.DB.Model(&models.Device{}).Where("credential_id = ?", id).Count(&count)
	if count > 0 {
		return fmt.Errorf("credential is referenced by %d devices", count)
	}
	return s.DB.Delete(&models.Credential{}, "id = ?", id).Error
}
