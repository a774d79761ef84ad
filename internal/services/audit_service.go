package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/audit"
	"github.com/netwarden/netwarden/internal/config"
	"github.com/netwarden/netwarden/internal/connector"
	"github.com/netwarden/netwarden/internal/logger"
	"github.com/netwarden/netwarden/internal/metrics"
	"github.com/netwarden/netwarden/internal/models"
)

// ErrNothingToAudit is returned when the device or rule set resolves to
// nothing; the trigger is rejected before any run is created.
var ErrNothingToAudit = errors.New("device or rule set resolved to nothing")

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("audit run not found")

// AuditService is the single orchestration entry point. Every run, whether
// manual, scheduled or remediation-triggered, is created and executed here,
// so audit semantics live on one code path.
type AuditService struct {
	DB       *gorm.DB
	License  *LicenseService
	Notifier *NotificationService
	Locks    *audit.LockTable

	// Dial builds a device connector. Test hook; defaults to the connector
	// package's dialer.
	Dial func(models.Device, models.Credential) (connector.Connector, error)

	workers       int
	retryAttempts uint
	retryDelay    time.Duration
	retryMaxDelay time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewAuditService(db *gorm.DB, cfg config.Config, license *LicenseService, notifier *NotificationService, locks *audit.LockTable) *AuditService {
	dialer := &connector.Dialer{Timeout: cfg.ConnectTimeout}
	return &AuditService{
		DB:            db,
		License:       license,
		Notifier:      notifier,
		Locks:         locks,
		Dial:          dialer.ForDevice,
		workers:       cfg.Workers,
		retryAttempts: uint(cfg.RetryAttempts),
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		cancels:       make(map[string]context.CancelFunc),
	}
}

// StartRun resolves the device and rule sets, checks the license gate and
// accepts the run. The run itself completes asynchronously; the returned
// record is the acceptance acknowledgment.
func (s *AuditService) StartRun(deviceIDs, ruleIDs []string, trigger string) (*models.AuditRun, error) {
	devices, err := s.resolveDevices(deviceIDs)
	if err != nil {
		return nil, err
	}
	rules, err := s.resolveRules(ruleIDs)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 || len(rules) == 0 {
		return nil, ErrNothingToAudit
	}

	if err := s.License.Authorize("audit", len(devices)); err != nil {
		return nil, err
	}

	devJSON, _ := json.Marshal(idsOf(devices))
	ruleJSON, _ := json.Marshal(ruleIDsOf(rules))
	run := &models.AuditRun{
		Trigger:   trigger,
		DeviceIDs: string(devJSON),
		RuleIDs:   string(ruleJSON),
	}
	if err := s.DB.Create(run).Error; err != nil {
		return nil, fmt.Errorf("create audit run: %w", err)
	}
	metrics.IncRunStarted()

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	go s.execute(runCtx, run, devices, rules)
	return run, nil
}

// CancelRun stops dispatching new device work for a running audit. In-flight
// sessions close cleanly and the run completes with partial results.
func (s *AuditService) CancelRun(id, actor string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	cancel()
	s.logEvent(actor, "audit.cancel", fmt.Sprintf("run %s cancelled", id))
	return nil
}

func (s *AuditService) execute(ctx context.Context, run *models.AuditRun, devices []models.Device, rules []models.Rule) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, run.ID)
		s.mu.Unlock()
	}()

	now := time.Now()
	s.DB.Model(run).Updates(map[string]any{"status": models.RunRunning, "started_at": &now})

	checks := flattenChecks(rules)
	jobs := make([]audit.DeviceJob, 0, len(devices))
	for _, dev := range devices {
		var cred models.Credential
		if dev.CredentialID != "" {
			s.DB.First(&cred, "id = ?", dev.CredentialID)
		}
		jobs = append(jobs, audit.DeviceJob{Device: dev, Credential: cred, Checks: checks})
	}

	orch := &audit.Orchestrator{
		Dial:          s.Dial,
		Locks:         s.Locks,
		Sink:          &auditSink{db: s.DB},
		Workers:       s.workers,
		RetryAttempts: s.retryAttempts,
		RetryDelay:    s.retryDelay,
		RetryMaxDelay: s.retryMaxDelay,
	}

	if err := orch.Execute(ctx, run.ID, jobs); err != nil {
		// Only fatal run-scoped conditions land here.
		done := time.Now()
		s.DB.Model(run).Updates(map[string]any{"status": models.RunFailed, "error": err.Error(), "completed_at": &done})
		logger.Log().WithError(err).WithField("run", run.ID).Error("audit run failed")
		return
	}

	done := time.Now()
	s.DB.Model(run).Updates(map[string]any{"status": models.RunCompleted, "completed_at": &done})
	metrics.IncRunCompleted()
	s.notifyCompletion(run.ID, len(devices), len(rules))
}

func (s *AuditService) notifyCompletion(runID string, devices, rules int) {
	if s.Notifier == nil {
		return
	}
	var passed, failed, errored int64
	s.DB.Model(&models.CheckResult{}).Where("run_id = ? AND status = ?", runID, models.ResultPass).Count(&passed)
	s.DB.Model(&models.CheckResult{}).Where("run_id = ? AND status = ?", runID, models.ResultFail).Count(&failed)
	s.DB.Model(&models.CheckResult{}).Where("run_id = ? AND status = ?", runID, models.ResultError).Count(&errored)

	title := fmt.Sprintf("Audit run %s completed", runID)
	msg := fmt.Sprintf("%d devices, %d rules: %d passed, %d failed, %d errors", devices, rules, passed, failed, errored)
	nType := models.NotificationTypeSuccess
	if failed > 0 || errored > 0 {
		nType = models.NotificationTypeError
	}
	if _, err := s.Notifier.Create(nType, title, msg); err != nil {
		logger.Log().WithError(err).Error("create completion notification")
	}
	s.Notifier.SendExternal(EventAudit, title, msg, map[string]interface{}{
		"RunID":   runID,
		"Devices": devices,
		"Rules":   rules,
		"Passed":  passed,
		"Failed":  failed,
		"Errors":  errored,
	})
}

// Queries.

func (s *AuditService) GetRun(id string) (*models.AuditRun, error) {
	var run models.AuditRun
	if err := s.DB.First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (s *AuditService) ListRuns(limit int) ([]models.AuditRun, error) {
	var runs []models.AuditRun
	q := s.DB.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return runs, q.Find(&runs).Error
}

func (s *AuditService) Results(runID string) ([]models.CheckResult, error) {
	var results []models.CheckResult
	err := s.DB.Where("run_id = ?", runID).Order("device_id, created_at").Find(&results).Error
	return results, err
}

func (s *AuditService) Scores(runID string) ([]models.DeviceScore, error) {
	var scores []models.DeviceScore
	err := s.DB.Where("run_id = ?", runID).Find(&scores).Error
	return scores, err
}

// Helpers shared with the remediation engine.

func (s *AuditService) resolveDevices(ids []string) ([]models.Device, error) {
	var devices []models.Device
	q := s.DB.Where("enabled = ?", true)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if err := q.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *AuditService) resolveRules(ids []string) ([]models.Rule, error) {
	var rules []models.Rule
	q := s.DB.Where("enabled = ?", true).Preload("Checks", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if err := q.Order("name ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *AuditService) logEvent(actor, action, details string) {
	if err := s.DB.Create(&models.EventLog{Actor: actor, Action: action, Details: details}).Error; err != nil {
		logger.Log().WithError(err).Error("write event log")
	}
}

func flattenChecks(rules []models.Rule) []models.Check {
	var checks []models.Check
	for _, rule := range rules {
		checks = append(checks, rule.Checks...)
	}
	return checks
}

func idsOf(devices []models.Device) []string {
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return ids
}

func ruleIDsOf(rules []models.Rule) []string {
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// auditSink persists orchestrator artifacts. Writes are device-scoped.
type auditSink struct {
	db *gorm.DB
}

func (s *auditSink) SaveResult(res *models.CheckResult) error {
	metrics.IncCheckResult(res.Status)
	return s.db.Create(res).Error
}

func (s *auditSink) SaveSnapshot(deviceID, content string) error {
	return s.db.Create(&models.ConfigSnapshot{DeviceID: deviceID, Content: content}).Error
}

func (s *auditSink) SaveScore(score *models.DeviceScore) error {
	return s.db.Create(score).Error
}
