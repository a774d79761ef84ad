package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/logger"
	"github.com/netwarden/netwarden/internal/metrics"
	"github.com/netwarden/netwarden/internal/models"
)

// ErrNoBaseline means drift cannot be computed until an operator designates
// a baseline snapshot for the device.
var ErrNoBaseline = errors.New("device has no baseline snapshot")

// ErrSnapshotNotFound is returned for unknown snapshot ids.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// DriftService compares a device's most recent configuration snapshot to its
// designated baseline and records non-empty divergence.
type DriftService struct {
	DB       *gorm.DB
	Notifier *NotificationService

	// Threshold is the lines-changed count at or above which drift
	// classifies high. Policy input, not a constant.
	Threshold int
}

func NewDriftService(db *gorm.DB, notifier *NotificationService, threshold int) *DriftService {
	return &DriftService{DB: db, Notifier: notifier, Threshold: threshold}
}

// SetBaseline designates a snapshot as the device's drift comparison point.
// Replacement is explicit and destructive: the prior baseline is demoted and
// drift can no longer be detected against it.
func (s *DriftService) SetBaseline(deviceID, snapshotID, actor string) error {
	var snap models.ConfigSnapshot
	if err := s.DB.First(&snap, "id = ? AND device_id = ?", snapshotID, deviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSnapshotNotFound
		}
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ConfigSnapshot{}).
			Where("device_id = ? AND is_baseline = ?", deviceID, true).
			Update("is_baseline", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&snap).Update("is_baseline", true).Error; err != nil {
			return err
		}
		return tx.Create(&models.EventLog{
			Actor:   actor,
			Action:  "baseline.replace",
			Details: fmt.Sprintf("device %s baseline set to snapshot %s", deviceID, snapshotID),
		}).Error
	})
}

// Detect diffs the device's latest snapshot against its baseline. An empty
// diff produces no record; absence of drift is not a zero-severity record.
func (s *DriftService) Detect(deviceID string) (*models.DriftRecord, error) {
	var baseline models.ConfigSnapshot
	if err := s.DB.First(&baseline, "device_id = ? AND is_baseline = ?", deviceID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoBaseline
		}
		return nil, err
	}

	var latest models.ConfigSnapshot
	if err := s.DB.Where("device_id = ?", deviceID).
		Order("taken_at DESC").First(&latest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoBaseline
		}
		return nil, err
	}

	if latest.ID == baseline.ID || latest.Content == baseline.Content {
		return nil, nil
	}

	changed := diffLines(baseline.Content, latest.Content)
	if changed == 0 {
		return nil, nil
	}
	severity := models.DriftSeverityLow
	if changed >= s.Threshold {
		severity = models.DriftSeverityHigh
	}

	record := &models.DriftRecord{
		DeviceID:     deviceID,
		SnapshotID:   latest.ID,
		BaselineID:   baseline.ID,
		LinesChanged: changed,
		Severity:     severity,
	}
	if err := s.DB.Create(record).Error; err != nil {
		return nil, err
	}
	metrics.IncDriftRecord()

	if s.Notifier != nil {
		title := fmt.Sprintf("Configuration drift on device %s", deviceID)
		msg := fmt.Sprintf("%d lines changed against baseline (%s severity)", changed, severity)
		nType := models.NotificationTypeInfo
		if severity == models.DriftSeverityHigh {
			nType = models.NotificationTypeError
		}
		if _, err := s.Notifier.Create(nType, title, msg); err != nil {
			logger.Log().WithError(err).Error("create drift notification")
		}
		s.Notifier.SendExternal(EventDrift, title, msg, map[string]interface{}{
			"DeviceID":     deviceID,
			"LinesChanged": changed,
			"Severity":     severity,
		})
	}
	return record, nil
}

// DetectAll sweeps every device that has a baseline. Used by the scheduler.
func (s *DriftService) DetectAll() []models.DriftRecord {
	var baselines []models.ConfigSnapshot
	if err := s.DB.Where("is_baseline = ?", true).Find(&baselines).Error; err != nil {
		logger.Log().WithError(err).Error("list baselines")
		return nil
	}

	var records []models.DriftRecord
	for _, b := range baselines {
		record, err := s.Detect(b.DeviceID)
		if err != nil {
			logger.Log().WithError(err).WithField("device", b.DeviceID).Warn("drift detection failed")
			continue
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	return records
}

// List returns drift records for a device, newest first.
func (s *DriftService) List(deviceID string, limit int) ([]models.DriftRecord, error) {
	var records []models.DriftRecord
	q := s.DB.Where("device_id = ?", deviceID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return records, q.Find(&records).Error
}

// Snapshots lists a device's snapshots, newest first.
func (s *DriftService) Snapshots(deviceID string, limit int) ([]models.ConfigSnapshot, error) {
	var snaps []models.ConfigSnapshot
	q := s.DB.Where("device_id = ?", deviceID).Order("taken_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return snaps, q.Find(&snaps).Error
}

// diffLines counts lines added plus lines removed between two texts using a
// longest-common-subsequence diff. Inputs beyond the DP budget fall back to
// a positional comparison.
func diffLines(a, b string) int {
	al := strings.Split(a, "\n")
	bl := strings.Split(b, "\n")

	const budget = 4_000_000
	if len(al)*len(bl) > budget {
		return positionalDiff(al, bl)
	}

	dp := make([][]int, len(al)+1)
	for i := range dp {
		dp[i] = make([]int, len(bl)+1)
	}
	for i := 1; i <= len(al); i++ {
		for j := 1; j <= len(bl); j++ {
			if al[i-1] == bl[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	lcs := dp[len(al)][len(bl)]
	return (len(al) - lcs) + (len(bl) - lcs)
}

func positionalDiff(al, bl []string) int {
	n := len(al)
	if len(bl) < n {
		n = len(bl)
	}
	changed := 0
	for i := 0; i < n; i++ {
		if al[i] != bl[i] {
			changed++
		}
	}
	return changed + (len(al) - n) + (len(bl) - n)
}
