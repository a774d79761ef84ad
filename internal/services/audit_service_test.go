package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/audit"
	"github.com/netwarden/netwarden/internal/config"
	"github.com/netwarden/netwarden/internal/connector"
	"github.com/netwarden/netwarden/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Device{}, &models.Credential{},
		&models.Rule{}, &models.Check{},
		&models.AuditRun{}, &models.CheckResult{}, &models.DeviceScore{},
		&models.RemediationAction{},
		&models.ConfigSnapshot{}, &models.DriftRecord{},
		&models.User{}, &models.Setting{},
		&models.Notification{}, &models.NotificationProvider{},
		&models.AuditSchedule{}, &models.EventLog{},
	))
	return db
}

func testConfig() config.Config {
	return config.Config{
		Workers:        2,
		ConnectTimeout: time.Second,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
		DriftThreshold: 20,
	}
}

// stubConn is a device simulator: GetConfig serves values by path and
// ApplyConfig merges payloads so a later audit pass observes the change.
type stubConn struct {
	mu      sync.Mutex
	values  map[string]*connector.Value
	applied []any
	accept  bool
	openErr error

	// onApply mutates the simulated device on a successful apply. Called with
	// the mutex held.
	onApply func(c *stubConn, payload any)
}

func (c *stubConn) Open(ctx context.Context) error { return c.openErr }

func (c *stubConn) GetConfig(ctx context.Context, q connector.Query) (*connector.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[q.Path]
	if !ok {
		return nil, connector.ErrNotFound
	}
	return v, nil
}

func (c *stubConn) ApplyConfig(ctx context.Context, payload any) (connector.ApplyOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, payload)
	if !c.accept {
		return connector.ApplyOutcome{Applied: false, Detail: "rejected by device"}, nil
	}
	if c.onApply != nil {
		c.onApply(c, payload)
	}
	return connector.ApplyOutcome{Applied: true, Detail: "ok"}, nil
}

func (c *stubConn) Close() error { return nil }

func stubDialer(conns map[string]*stubConn) func(models.Device, models.Credential) (connector.Connector, error) {
	return func(dev models.Device, _ models.Credential) (connector.Connector, error) {
		conn, ok := conns[dev.ID]
		if !ok {
			return nil, errors.New("no stub for device " + dev.ID)
		}
		return conn, nil
	}
}

func newTestAuditService(t *testing.T, db *gorm.DB, conns map[string]*stubConn) *AuditService {
	t.Helper()
	license := NewLicenseService(db, 100)
	notifier := NewNotificationService(db)
	svc := NewAuditService(db, testConfig(), license, notifier, audit.NewLockTable())
	if conns != nil {
		svc.Dial = stubDialer(conns)
	}
	return svc
}

func seedDevice(t *testing.T, db *gorm.DB, name string) models.Device {
	t.Helper()
	cred := models.Credential{Name: name + "-cred", Username: "audit", Password: "x"}
	require.NoError(t, db.Create(&cred).Error)
	dev := models.Device{Name: name, Vendor: models.VendorIOSXE, Address: "192.0.2.1", Enabled: true, CredentialID: cred.ID}
	require.NoError(t, db.Create(&dev).Error)
	return dev
}

func seedBGPRule(t *testing.T, db *gorm.DB) models.Rule {
	t.Helper()
	rule := models.Rule{
		Name:    "bgp baseline",
		Enabled: true,
		Checks: []models.Check{{
			Name:        "bgp AS configured",
			Position:    0,
			Query:       models.QueryStructured,
			Path:        "/bgp",
			Filter:      `{"as-number": {}}`,
			Match:       models.MatchEquals,
			Expected:    `{"as-number": 65000}`,
			Remediation: `{"bgp": {"as-number": 65000}}`,
		}},
	}
	require.NoError(t, db.Create(&rule).Error)
	return rule
}

// waitForRun polls until the run leaves the running states.
func waitForRun(t *testing.T, svc *AuditService, id string) *models.AuditRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := svc.GetRun(id)
		require.NoError(t, err)
		if run.Status == models.RunCompleted || run.Status == models.RunFailed {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return nil
}

func TestStartRun_EmptySets(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestAuditService(t, db, nil)

	_, err := svc.StartRun(nil, nil, models.TriggerManual)
	assert.ErrorIs(t, err, ErrNothingToAudit)
}

func TestStartRun_DisabledDevicesExcluded(t *testing.T) {
	db := setupTestDB(t)
	dev := seedDevice(t, db, "sw-1")
	require.NoError(t, db.Model(&dev).Update("enabled", false).Error)
	seedBGPRule(t, db)

	svc := newTestAuditService(t, db, nil)
	_, err := svc.StartRun(nil, nil, models.TriggerManual)
	assert.ErrorIs(t, err, ErrNothingToAudit)
}

func TestStartRun_LicenseDenied(t *testing.T) {
	db := setupTestDB(t)
	seedDevice(t, db, "sw-1")
	seedDevice(t, db, "sw-2")
	seedBGPRule(t, db)
	require.NoError(t, db.Create(&models.Setting{Key: "license.max_devices", Value: "1"}).Error)

	svc := newTestAuditService(t, db, nil)
	_, err := svc.StartRun(nil, nil, models.TriggerManual)
	assert.ErrorIs(t, err, ErrLicenseDenied)

	// No run record is created for a denied trigger.
	var count int64
	db.Model(&models.AuditRun{}).Count(&count)
	assert.Zero(t, count)
}

func TestStartRun_CompletesWithResults(t *testing.T) {
	db := setupTestDB(t)
	compliant := seedDevice(t, db, "sw-1")
	missing := seedDevice(t, db, "sw-2")
	seedBGPRule(t, db)

	conns := map[string]*stubConn{
		compliant.ID: {values: map[string]*connector.Value{
			"/bgp": {Tree: map[string]any{"as-number": float64(65000)}},
			"/":    {Tree: map[string]any{"bgp": map[string]any{"as-number": float64(65000)}}},
		}},
		missing.ID: {values: map[string]*connector.Value{
			"/": {Tree: map[string]any{"ospf": map[string]any{}}},
		}},
	}

	svc := newTestAuditService(t, db, conns)
	run, err := svc.StartRun(nil, nil, models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.Status)

	final := waitForRun(t, svc, run.ID)
	assert.Equal(t, models.RunCompleted, final.Status)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)

	results, err := svc.Results(run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	byDevice := map[string]models.CheckResult{}
	for _, r := range results {
		byDevice[r.DeviceID] = r
	}
	assert.Equal(t, models.ResultPass, byDevice[compliant.ID].Status)
	assert.Equal(t, models.ResultFail, byDevice[missing.ID].Status)

	scores, err := svc.Scores(run.ID)
	require.NoError(t, err)
	assert.Len(t, scores, 2)

	// The compliant device got a full-config snapshot for drift detection.
	var snaps int64
	db.Model(&models.ConfigSnapshot{}).Where("device_id = ?", compliant.ID).Count(&snaps)
	assert.EqualValues(t, 1, snaps)

	// Completion produced an in-app notification.
	var notifs int64
	db.Model(&models.Notification{}).Count(&notifs)
	assert.EqualValues(t, 1, notifs)
}

func TestStartRun_ScopedToRequestedSets(t *testing.T) {
	db := setupTestDB(t)
	wanted := seedDevice(t, db, "sw-1")
	seedDevice(t, db, "sw-2")
	rule := seedBGPRule(t, db)

	conns := map[string]*stubConn{
		wanted.ID: {values: map[string]*connector.Value{
			"/bgp": {Tree: map[string]any{"as-number": float64(65000)}},
		}},
	}

	svc := newTestAuditService(t, db, conns)
	run, err := svc.StartRun([]string{wanted.ID}, []string{rule.ID}, models.TriggerManual)
	require.NoError(t, err)

	waitForRun(t, svc, run.ID)
	results, err := svc.Results(run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, wanted.ID, results[0].DeviceID)
}

func TestStartRun_DeviceFatalOpenDoesNotFailRun(t *testing.T) {
	db := setupTestDB(t)
	healthy := seedDevice(t, db, "sw-1")
	locked := seedDevice(t, db, "sw-2")
	seedBGPRule(t, db)

	conns := map[string]*stubConn{
		healthy.ID: {values: map[string]*connector.Value{
			"/bgp": {Tree: map[string]any{"as-number": float64(65000)}},
		}},
		locked.ID: {openErr: &connector.AuthError{Device: "sw-2", Err: errors.New("bad password")}},
	}

	svc := newTestAuditService(t, db, conns)
	run, err := svc.StartRun(nil, nil, models.TriggerManual)
	require.NoError(t, err)

	final := waitForRun(t, svc, run.ID)
	assert.Equal(t, models.RunCompleted, final.Status)

	results, _ := svc.Results(run.ID)
	byDevice := map[string]models.CheckResult{}
	for _, r := range results {
		byDevice[r.DeviceID] = r
	}
	assert.Equal(t, models.ResultPass, byDevice[healthy.ID].Status)
	assert.Equal(t, models.ResultError, byDevice[locked.ID].Status)
}

func TestCancelRun_Unknown(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestAuditService(t, db, nil)
	assert.ErrorIs(t, svc.CancelRun("nope", "tester"), ErrRunNotFound)
}
