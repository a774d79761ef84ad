package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/sirupsen/logrus"

	"github.com/netwarden/netwarden/internal/connector"
	"github.com/netwarden/netwarden/internal/logger"
	"github.com/netwarden/netwarden/internal/models"
)

// Sink receives the artifacts an audit produces. Writes are per-device
// scoped, so workers never contend on the same rows.
type Sink interface {
	SaveResult(res *models.CheckResult) error
	SaveSnapshot(deviceID, content string) error
	SaveScore(score *models.DeviceScore) error
}

// DeviceJob is one device's share of a run: its credential and the checks to
// evaluate, already in declared order.
type DeviceJob struct {
	Device     models.Device
	Credential models.Credential
	Checks     []models.Check
}

// Orchestrator fans a run's device jobs across a bounded worker pool. Each
// worker owns one device's connector session exclusively for the duration of
// its check sequence; the shared LockTable keeps concurrent runs off the same
// device.
type Orchestrator struct {
	Dial      func(models.Device, models.Credential) (connector.Connector, error)
	Evaluator Evaluator
	Locks     *LockTable
	Sink      Sink

	Workers       int
	RetryAttempts uint
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// Execute processes every device job and returns once all workers have
// drained. Cancellation stops dispatching new devices and new checks;
// in-flight sessions close cleanly and partial results are kept, so the
// caller still marks the run completed.
func (o *Orchestrator) Execute(ctx context.Context, runID string, jobs []DeviceJob) error {
	if len(jobs) == 0 {
		return fmt.Errorf("no device jobs to execute")
	}

	workers := o.Workers
	if workers < 1 {
		workers = 4
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan DeviceJob)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				o.auditDevice(ctx, runID, job)
			}
		}()
	}

dispatch:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		case jobCh <- job:
		}
	}
	close(jobCh)
	wg.Wait()
	return nil
}

func (o *Orchestrator) auditDevice(ctx context.Context, runID string, job DeviceJob) {
	release := o.Locks.Acquire(job.Device.ID)
	defer release()

	log := logger.WithFields(logrus.Fields{"run": runID, "device": job.Device.Name})

	conn, err := o.Dial(job.Device, job.Credential)
	if err != nil {
		log.WithError(err).Error("connector selection failed")
		o.failDevice(runID, job, err.Error())
		return
	}

	if err := o.openWithRetry(ctx, conn); err != nil {
		// AuthError and exhausted ConnectError are fatal for this device
		// only; the run continues for others.
		log.WithError(err).Error("session open failed")
		o.failDevice(runID, job, err.Error())
		conn.Close()
		return
	}
	defer conn.Close()

	passed, evaluated := 0, 0
	for _, chk := range job.Checks {
		if ctx.Err() != nil {
			log.Info("run cancelled, stopping check sequence")
			break
		}
		res := o.evaluateWithRetry(ctx, conn, job.Device, chk)
		res.RunID = runID
		if err := o.Sink.SaveResult(&res); err != nil {
			log.WithError(err).Error("persist check result")
		}
		evaluated++
		if res.Status == models.ResultPass {
			passed++
		}
	}

	if ctx.Err() == nil {
		o.snapshot(ctx, conn, job.Device, log)
	}

	score := &models.DeviceScore{RunID: runID, DeviceID: job.Device.ID, Passed: passed, Total: evaluated}
	if err := o.Sink.SaveScore(score); err != nil {
		log.WithError(err).Error("persist device score")
	}
}

func (o *Orchestrator) openWithRetry(ctx context.Context, conn connector.Connector) error {
	return retry.Do(func() error {
		return conn.Open(ctx)
	},
		retry.Context(ctx),
		retry.Attempts(o.attempts()),
		retry.Delay(o.delay()),
		retry.MaxDelay(o.maxDelay()),
		retry.RetryIf(connector.IsRetryable),
		retry.LastErrorOnly(true),
	)
}

// evaluateWithRetry re-issues a check on transient transport failures with
// bounded exponential backoff. Exhausting the budget downgrades the result
// to an error instead of aborting the run.
func (o *Orchestrator) evaluateWithRetry(ctx context.Context, conn connector.Connector, dev models.Device, chk models.Check) models.CheckResult {
	res, err := retry.DoWithData(func() (models.CheckResult, error) {
		return o.Evaluator.Evaluate(ctx, conn, dev, chk)
	},
		retry.Context(ctx),
		retry.Attempts(o.attempts()),
		retry.Delay(o.delay()),
		retry.MaxDelay(o.maxDelay()),
		retry.RetryIf(connector.IsRetryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return models.CheckResult{
			DeviceID: dev.ID,
			RuleID:   chk.RuleID,
			CheckID:  chk.ID,
			Status:   models.ResultError,
			Detail:   fmt.Sprintf("retries exhausted: %v", err),
		}
	}
	return res
}

// failDevice records an error result for every check of a device that never
// reached evaluation, preserving the per-check audit trail.
func (o *Orchestrator) failDevice(runID string, job DeviceJob, detail string) {
	for _, chk := range job.Checks {
		res := &models.CheckResult{
			RunID:    runID,
			DeviceID: job.Device.ID,
			RuleID:   chk.RuleID,
			CheckID:  chk.ID,
			Status:   models.ResultError,
			Detail:   detail,
		}
		if err := o.Sink.SaveResult(res); err != nil {
			logger.Log().WithError(err).Error("persist check result")
		}
	}
	score := &models.DeviceScore{RunID: runID, DeviceID: job.Device.ID, Passed: 0, Total: len(job.Checks)}
	if err := o.Sink.SaveScore(score); err != nil {
		logger.Log().WithError(err).Error("persist device score")
	}
}

// snapshot captures the device's full configuration for the drift detector.
// Best effort: a failed snapshot never fails the audit.
func (o *Orchestrator) snapshot(ctx context.Context, conn connector.Connector, dev models.Device, log *logrus.Entry) {
	capability, ok := dev.Vendor.Capability()
	if !ok {
		return
	}
	value, err := conn.GetConfig(ctx, connector.SnapshotQuery(capability))
	if err != nil {
		log.WithError(err).Warn("config snapshot failed")
		return
	}
	if value.Empty() {
		return
	}
	if err := o.Sink.SaveSnapshot(dev.ID, value.Render()); err != nil {
		log.WithError(err).Error("persist config snapshot")
	}
}

func (o *Orchestrator) attempts() uint {
	if o.RetryAttempts == 0 {
		return 3
	}
	return o.RetryAttempts
}

func (o *Orchestrator) delay() time.Duration {
	if o.RetryDelay == 0 {
		return 500 * time.Millisecond
	}
	return o.RetryDelay
}

func (o *Orchestrator) maxDelay() time.Duration {
	if o.RetryMaxDelay == 0 {
		return 5 * time.Second
	}
	return o.RetryMaxDelay
}
