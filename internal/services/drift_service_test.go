package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/models"
)

func seedSnapshot(t *testing.T, db *gorm.DB, deviceID, content string, takenAt time.Time) models.ConfigSnapshot {
	t.Helper()
	snap := models.ConfigSnapshot{DeviceID: deviceID, Content: content, TakenAt: takenAt}
	require.NoError(t, db.Create(&snap).Error)
	return snap
}

func configLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("interface ge-0/0/%d", i)
	}
	return strings.Join(lines, "\n")
}

func TestSetBaseline_ReplacesPrevious(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDriftService(db, nil, 20)

	old := seedSnapshot(t, db, "d1", "a", time.Now().Add(-2*time.Hour))
	next := seedSnapshot(t, db, "d1", "b", time.Now().Add(-time.Hour))

	require.NoError(t, svc.SetBaseline("d1", old.ID, "tester"))
	require.NoError(t, svc.SetBaseline("d1", next.ID, "tester"))

	var baselines []models.ConfigSnapshot
	require.NoError(t, db.Where("device_id = ? AND is_baseline = ?", "d1", true).Find(&baselines).Error)
	require.Len(t, baselines, 1)
	assert.Equal(t, next.ID, baselines[0].ID)

	var events int64
	db.Model(&models.EventLog{}).Where("action = ?", "baseline.replace").Count(&events)
	assert.EqualValues(t, 2, events)
}

func TestSetBaseline_UnknownSnapshot(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDriftService(db, nil, 20)
	assert.ErrorIs(t, svc.SetBaseline("d1", "nope", "tester"), ErrSnapshotNotFound)
}

func TestSetBaseline_WrongDevice(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDriftService(db, nil, 20)
	snap := seedSnapshot(t, db, "d1", "a", time.Now())
	assert.ErrorIs(t, svc.SetBaseline("d2", snap.ID, "tester"), ErrSnapshotNotFound)
}

func TestDetect_NoBaseline(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDriftService(db, nil, 20)
	seedSnapshot(t, db, "d1", "a", time.Now())

	_, err := svc.Detect("d1")
	assert.ErrorIs(t, err, ErrNoBaseline)
}

func TestDetect_NoDriftNoRecord(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDriftService(db, nil, 20)

	base := seedSnapshot(t, db, "d1", configLines(10), time.Now().Add(-time.Hour))
	require.NoError(t, svc.SetBaseline("d1", base.ID, "tester"))
	seedSnapshot(t, db, "d1", configLines(10), time.Now())

	record, err := svc.Detect("d1")
	require.NoError(t, err)
	assert.Nil(t, record)

	var count int64
	db.Model(&models.DriftRecord{}).Count(&count)
	assert.Zero(t, count)
}

func TestDetect_BaselineIsLatest(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDriftService(db, nil, 20)

	base := seedSnapshot(t, db, "d1", configLines(10), time.Now())
	require.NoError(t, svc.SetBaseline("d1", base.ID, "tester"))

	record, err := svc.Detect("d1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestDetect_SeverityByThreshold(t *testing.T) {
	db := setupTestDB(t)
	notifier := NewNotificationService(db)
	svc := NewDriftService(db, notifier, 20)

	base := seedSnapshot(t, db, "d1", configLines(50), time.Now().Add(-time.Hour))
	require.NoError(t, svc.SetBaseline("d1", base.ID, "tester"))

	// 40 lines replaced: 40 removed plus 40 added, far past the threshold.
	changed := configLines(10) + "\n" + strings.Repeat("new-line\n", 39) + "new-last"
	seedSnapshot(t, db, "d1", changed, time.Now())

	record, err := svc.Detect("d1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.DriftSeverityHigh, record.Severity)
	assert.Equal(t, base.ID, record.BaselineID)
	assert.GreaterOrEqual(t, record.LinesChanged, 20)

	var notifs int64
	db.Model(&models.Notification{}).Count(&notifs)
	assert.EqualValues(t, 1, notifs)
}

func TestDetect_LowSeverity(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDriftService(db, nil, 20)

	base := seedSnapshot(t, db, "d1", configLines(10), time.Now().Add(-time.Hour))
	require.NoError(t, svc.SetBaseline("d1", base.ID, "tester"))
	seedSnapshot(t, db, "d1", configLines(10)+"\nsnmp community public", time.Now())

	record, err := svc.Detect("d1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.DriftSeverityLow, record.Severity)
	assert.Equal(t, 1, record.LinesChanged)
}

func TestDetectAll_SweepsBaselinedDevices(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDriftService(db, nil, 20)

	b1 := seedSnapshot(t, db, "d1", configLines(5), time.Now().Add(-time.Hour))
	require.NoError(t, svc.SetBaseline("d1", b1.ID, "tester"))
	seedSnapshot(t, db, "d1", configLines(5)+"\nextra", time.Now())

	b2 := seedSnapshot(t, db, "d2", configLines(5), time.Now().Add(-time.Hour))
	require.NoError(t, svc.SetBaseline("d2", b2.ID, "tester"))
	seedSnapshot(t, db, "d2", configLines(5), time.Now())

	records := svc.DetectAll()
	require.Len(t, records, 1)
	assert.Equal(t, "d1", records[0].DeviceID)
}

func TestDiffLines(t *testing.T) {
	assert.Equal(t, 0, diffLines("a\nb\nc", "a\nb\nc"))
	assert.Equal(t, 1, diffLines("a\nb\nc", "a\nb\nc\nd"))
	assert.Equal(t, 2, diffLines("a\nb\nc", "a\nx\nc"))
	// Insertions at the head do not cascade into spurious changes.
	assert.Equal(t, 1, diffLines("a\nb\nc", "z\na\nb\nc"))
}
