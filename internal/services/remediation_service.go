package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/audit"
	"github.com/netwarden/netwarden/internal/config"
	"github.com/netwarden/netwarden/internal/connector"
	"github.com/netwarden/netwarden/internal/logger"
	"github.com/netwarden/netwarden/internal/metrics"
	"github.com/netwarden/netwarden/internal/models"
)

// ErrNothingToRemediate is returned when no failing check in the source run
// carries a reference payload for the requested devices.
var ErrNothingToRemediate = errors.New("no remediable failures for the requested devices")

// ErrRunNotCompleted rejects remediation against runs that have not finished;
// failing results are only final once the run is completed.
var ErrRunNotCompleted = errors.New("source audit run is not completed")

// DeviceSummary is one device's remediation outcome counts.
type DeviceSummary struct {
	DeviceID string `json:"device_id"`
	Applied  int    `json:"applied"`
	Rejected int    `json:"rejected"`
	Errors   int    `json:"errors"`
}

// BatchSummary reports per-device success counts for a remediation batch.
// Never an all-or-nothing verdict.
type BatchSummary struct {
	RunID        string          `json:"run_id"`
	ReauditRunID string          `json:"reaudit_run_id,omitempty"`
	Devices      []DeviceSummary `json:"devices"`
}

// RemediationService pushes reference payloads to failing devices and,
// when asked, re-verifies through a fresh audit run on the normal
// orchestration path.
type RemediationService struct {
	DB       *gorm.DB
	License  *LicenseService
	Audits   *AuditService
	Notifier *NotificationService
	Locks    *audit.LockTable

	// Dial builds a device connector. Test hook.
	Dial func(models.Device, models.Credential) (connector.Connector, error)
}

func NewRemediationService(db *gorm.DB, cfg config.Config, license *LicenseService, audits *AuditService, notifier *NotificationService, locks *audit.LockTable) *RemediationService {
	dialer := &connector.Dialer{Timeout: cfg.ConnectTimeout}
	return &RemediationService{
		DB:       db,
		License:  license,
		Audits:   audits,
		Notifier: notifier,
		Locks:    locks,
		Dial:     dialer.ForDevice,
	}
}

// remediationItem pairs a failing result with its check's reference payload.
type remediationItem struct {
	result models.CheckResult
	check  models.Check
}

// Remediate applies reference payloads for a completed run's failing checks,
// independently per device, and optionally triggers an asynchronous re-audit
// scoped to exactly the remediated devices and rules. The call itself
// returns once payloads are applied.
func (s *RemediationService) Remediate(ctx context.Context, runID string, deviceIDs []string, reaudit bool, actor string) (*BatchSummary, error) {
	run, err := s.Audits.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunCompleted {
		return nil, ErrRunNotCompleted
	}

	byDevice, ruleSet, err := s.collectFailures(runID, deviceIDs)
	if err != nil {
		return nil, err
	}
	if len(byDevice) == 0 {
		return nil, ErrNothingToRemediate
	}

	if err := s.License.Authorize("remediation", len(byDevice)); err != nil {
		return nil, err
	}

	summary := &BatchSummary{RunID: runID}
	deviceOrder := make([]string, 0, len(byDevice))
	for id := range byDevice {
		deviceOrder = append(deviceOrder, id)
	}
	sort.Strings(deviceOrder)

	var actionIDs []string
	for _, deviceID := range deviceOrder {
		devSummary, ids := s.remediateDevice(ctx, runID, deviceID, byDevice[deviceID])
		summary.Devices = append(summary.Devices, devSummary)
		actionIDs = append(actionIDs, ids...)
	}

	if reaudit {
		rules := make([]string, 0, len(ruleSet))
		for id := range ruleSet {
			rules = append(rules, id)
		}
		reauditRun, err := s.Audits.StartRun(deviceOrder, rules, models.TriggerRemediation)
		if err != nil {
			logger.Log().WithError(err).WithField("run", runID).Error("start re-audit")
		} else {
			summary.ReauditRunID = reauditRun.ID
			if len(actionIDs) > 0 {
				s.DB.Model(&models.RemediationAction{}).Where("id IN ?", actionIDs).
					Update("reaudit_run_id", reauditRun.ID)
			}
		}
	}

	s.notifyBatch(summary, actor)
	return summary, nil
}

// remediateDevice applies a device's payloads under its lock. One device's
// connector failure never blocks the rest of the batch.
func (s *RemediationService) remediateDevice(ctx context.Context, runID, deviceID string, items []remediationItem) (DeviceSummary, []string) {
	summary := DeviceSummary{DeviceID: deviceID}
	var actionIDs []string

	record := func(item remediationItem, outcome, detail string) {
		action := &models.RemediationAction{
			RunID:    runID,
			DeviceID: deviceID,
			CheckID:  item.check.ID,
			Payload:  item.check.Remediation,
			Outcome:  outcome,
			Detail:   detail,
		}
		if err := s.DB.Create(action).Error; err != nil {
			logger.Log().WithError(err).Error("persist remediation action")
			return
		}
		actionIDs = append(actionIDs, action.ID)
		metrics.IncRemediation(outcome)
	}

	release := s.Locks.Acquire(deviceID)
	defer release()

	var device models.Device
	if err := s.DB.First(&device, "id = ?", deviceID).Error; err != nil {
		for _, item := range items {
			record(item, models.RemediationConnectorError, "device not found")
			summary.Errors++
		}
		return summary, actionIDs
	}
	var cred models.Credential
	if device.CredentialID != "" {
		s.DB.First(&cred, "id = ?", device.CredentialID)
	}

	conn, err := s.Dial(device, cred)
	if err == nil {
		err = conn.Open(ctx)
	}
	if err != nil {
		for _, item := range items {
			record(item, models.RemediationConnectorError, err.Error())
			summary.Errors++
		}
		if conn != nil {
			conn.Close()
		}
		return summary, actionIDs
	}
	defer conn.Close()

	for _, item := range items {
		outcome, err := conn.ApplyConfig(ctx, item.check.Remediation)
		switch {
		case err != nil:
			// Includes ConfigParseError, surfaced verbatim for operator
			// correction of the reference payload.
			record(item, models.RemediationConnectorError, err.Error())
			summary.Errors++
		case outcome.Applied:
			record(item, models.RemediationApplied, outcome.Detail)
			summary.Applied++
		default:
			record(item, models.RemediationRejected, outcome.Detail)
			summary.Rejected++
		}
	}
	return summary, actionIDs
}

// collectFailures groups the run's failing, remediable results by device and
// collects the rule set they belong to. Check order within a device follows
// the declared rule order.
func (s *RemediationService) collectFailures(runID string, deviceIDs []string) (map[string][]remediationItem, map[string]struct{}, error) {
	var failures []models.CheckResult
	q := s.DB.Where("run_id = ? AND status = ?", runID, models.ResultFail)
	if len(deviceIDs) > 0 {
		q = q.Where("device_id IN ?", deviceIDs)
	}
	if err := q.Order("created_at ASC").Find(&failures).Error; err != nil {
		return nil, nil, err
	}

	byDevice := make(map[string][]remediationItem)
	ruleSet := make(map[string]struct{})
	for _, res := range failures {
		var check models.Check
		if err := s.DB.First(&check, "id = ?", res.CheckID).Error; err != nil {
			continue
		}
		if check.Remediation == "" {
			continue
		}
		byDevice[res.DeviceID] = append(byDevice[res.DeviceID], remediationItem{result: res, check: check})
		ruleSet[res.RuleID] = struct{}{}
	}
	return byDevice, ruleSet, nil
}

func (s *RemediationService) notifyBatch(summary *BatchSummary, actor string) {
	applied, rejected, errs := 0, 0, 0
	for _, d := range summary.Devices {
		applied += d.Applied
		rejected += d.Rejected
		errs += d.Errors
	}
	details := fmt.Sprintf("run %s: %d devices, %d applied, %d rejected, %d errors",
		summary.RunID, len(summary.Devices), applied, rejected, errs)
	if err := s.DB.Create(&models.EventLog{Actor: actor, Action: "remediation.batch", Details: details}).Error; err != nil {
		logger.Log().WithError(err).Error("write event log")
	}

	if s.Notifier == nil {
		return
	}
	nType := models.NotificationTypeSuccess
	if rejected > 0 || errs > 0 {
		nType = models.NotificationTypeError
	}
	title := "Remediation batch finished"
	if _, err := s.Notifier.Create(nType, title, details); err != nil {
		logger.Log().WithError(err).Error("create remediation notification")
	}
	s.Notifier.SendExternal(EventRemediation, title, details, map[string]interface{}{
		"RunID":    summary.RunID,
		"Reaudit":  summary.ReauditRunID,
		"Applied":  applied,
		"Rejected": rejected,
		"Errors":   errs,
		"Time":     time.Now().Format(time.RFC3339),
	})
}

// Actions lists the remediation actions recorded against a source run.
func (s *RemediationService) Actions(runID string) ([]models.RemediationAction, error) {
	var actions []models.RemediationAction
	err := s.DB.Where("run_id = ?", runID).Order("created_at ASC").Find(&actions).Error
	return actions, err
}
