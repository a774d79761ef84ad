package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwarden/netwarden/internal/connector"
	"github.com/netwarden/netwarden/internal/models"
)

func TestScheduler_CreateScheduleValidatesCron(t *testing.T) {
	db := setupTestDB(t)
	audits := newTestAuditService(t, db, nil)
	sched := NewScheduler(db, audits, nil, "")

	err := sched.CreateSchedule(&models.AuditSchedule{Name: "bad", CronExpr: "every tuesday"})
	assert.Error(t, err)

	require.NoError(t, sched.CreateSchedule(&models.AuditSchedule{Name: "nightly", CronExpr: "0 2 * * *", Enabled: true}))
	sched.Stop()

	schedules, err := sched.ListSchedules()
	require.NoError(t, err)
	assert.Len(t, schedules, 1)
}

func TestScheduler_FireSubmitsRun(t *testing.T) {
	db := setupTestDB(t)
	dev := seedDevice(t, db, "sw-1")
	seedBGPRule(t, db)

	conns := map[string]*stubConn{
		dev.ID: {values: map[string]*connector.Value{
			"/bgp": {Tree: map[string]any{"as-number": float64(65000)}},
		}},
	}
	audits := newTestAuditService(t, db, conns)
	sched := NewScheduler(db, audits, nil, "")

	schedule := models.AuditSchedule{Name: "nightly", CronExpr: "0 2 * * *", Enabled: true}
	require.NoError(t, db.Create(&schedule).Error)

	sched.fire(schedule)

	var runs []models.AuditRun
	require.NoError(t, db.Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, models.TriggerScheduled, runs[0].Trigger)

	var updated models.AuditSchedule
	require.NoError(t, db.First(&updated, "id = ?", schedule.ID).Error)
	assert.Equal(t, runs[0].ID, updated.LastRunID)

	waitForRun(t, audits, runs[0].ID)
}

func TestScheduler_FireRejectedWhenNothingToAudit(t *testing.T) {
	db := setupTestDB(t)
	audits := newTestAuditService(t, db, nil)
	sched := NewScheduler(db, audits, nil, "")

	schedule := models.AuditSchedule{Name: "empty", CronExpr: "0 2 * * *", Enabled: true}
	require.NoError(t, db.Create(&schedule).Error)

	sched.fire(schedule)

	var count int64
	db.Model(&models.AuditRun{}).Count(&count)
	assert.Zero(t, count)
}
