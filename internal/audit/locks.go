// Package audit contains the compliance engine: check evaluation, run
// orchestration and the per-device ownership table that serializes audits
// and remediations touching the same device.
package audit

import "sync"

// LockTable hands out per-device mutexes. One shared table is passed to the
// orchestrator and the remediation engine so a remediation-triggered re-audit
// can never interleave session calls with a manual audit on the same device.
// Scope is per-device; unrelated devices proceed independently.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the caller exclusively owns the device, then returns
// the release function.
func (t *LockTable) Acquire(deviceID string) (release func()) {
	t.mu.Lock()
	l, ok := t.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[deviceID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
