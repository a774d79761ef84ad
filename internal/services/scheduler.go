package services

import (
	"encoding/json"
	"sync"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/logger"
	"github.com/netwarden/netwarden/internal/models"
)

// Scheduler submits stored audit schedules and the periodic drift sweep
// through the normal service entry points.
type Scheduler struct {
	DB        *gorm.DB
	Audits    *AuditService
	Drift     *DriftService
	DriftCron string

	mu   sync.Mutex
	cron *cron.Cron
}

func NewScheduler(db *gorm.DB, audits *AuditService, drift *DriftService, driftCron string) *Scheduler {
	return &Scheduler{DB: db, Audits: audits, Drift: drift, DriftCron: driftCron}
}

// Start builds the cron table from stored schedules and begins dispatching.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = cron.New()

	var schedules []models.AuditSchedule
	if err := s.DB.Where("enabled = ?", true).Find(&schedules).Error; err != nil {
		return err
	}
	for _, schedule := range schedules {
		sched := schedule
		if _, err := s.cron.AddFunc(sched.CronExpr, func() { s.fire(sched) }); err != nil {
			logger.Log().WithError(err).WithField("schedule", sched.Name).Error("invalid cron expression")
		}
	}

	if s.DriftCron != "" && s.Drift != nil {
		if _, err := s.cron.AddFunc(s.DriftCron, func() {
			records := s.Drift.DetectAll()
			if len(records) > 0 {
				logger.WithFields(map[string]interface{}{"records": len(records)}).Info("drift sweep finished")
			}
		}); err != nil {
			logger.Log().WithError(err).Error("invalid drift cron expression")
		}
	}

	s.cron.Start()
	logger.WithFields(map[string]interface{}{"schedules": len(schedules)}).Info("scheduler started")
	return nil
}

// Reload rebuilds the cron table after schedule changes.
func (s *Scheduler) Reload() error {
	return s.Start()
}

// Stop halts dispatching. Running audits are unaffected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) fire(schedule models.AuditSchedule) {
	var deviceIDs, ruleIDs []string
	if schedule.DeviceIDs != "" {
		_ = json.Unmarshal([]byte(schedule.DeviceIDs), &deviceIDs)
	}
	if schedule.RuleIDs != "" {
		_ = json.Unmarshal([]byte(schedule.RuleIDs), &ruleIDs)
	}

	run, err := s.Audits.StartRun(deviceIDs, ruleIDs, models.TriggerScheduled)
	if err != nil {
		logger.Log().WithError(err).WithField("schedule", schedule.Name).Error("scheduled audit rejected")
		return
	}
	s.DB.Model(&models.AuditSchedule{}).Where("id = ?", schedule.ID).Update("last_run_id", run.ID)
	logger.WithFields(map[string]interface{}{"schedule": schedule.Name, "run": run.ID}).Info("scheduled audit submitted")
}

// Schedule CRUD.

func (s *Scheduler) ListSchedules() ([]models.AuditSchedule, error) {
	var schedules []models.AuditSchedule
	return schedules, s.DB.Order("name ASC").Find(&schedules).Error
}

func (s *Scheduler) CreateSchedule(schedule *models.AuditSchedule) error {
	if _, err := cron.ParseStandard(schedule.CronExpr); err != nil {
		return err
	}
	if err := s.DB.Create(schedule).Error; err != nil {
		return err
	}
	return s.Reload()
}

func (s *Scheduler) DeleteSchedule(id string) error {
	if err := s.DB.Delete(&models.AuditSchedule{}, "id = ?", id).Error; err != nil {
		return err
	}
	return s.Reload()
}
