// Package connector speaks to network devices. It hides the per-vendor
// transport (RESTCONF-style HTTP for structured devices, NETCONF over SSH for
// subtree devices) behind a single session interface used by the audit
// engine. A connector is exclusively owned by one goroutine for the duration
// of a device's work and is never shared.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/netwarden/netwarden/internal/models"
)

// Query selects a configuration subtree.
type Query struct {
	// Kind is models.QueryStructured or models.QuerySubtree.
	Kind string
	// Path is the hierarchical path for structured queries, "/" for the whole
	// datastore.
	Path string
	// Filter is the nested key/value filter for structured queries. A nil or
	// empty node means "everything under this path"; an explicit "" leaf
	// matches only the empty string.
	Filter map[string]any
	// Subtree is the raw filter document for subtree queries, empty for the
	// full running config.
	Subtree string
}

// SnapshotQuery returns the query retrieving a device's full configuration,
// used for post-audit snapshots.
func SnapshotQuery(cap models.Capability) Query {
	if cap == models.CapSubtree {
		return Query{Kind: models.QuerySubtree}
	}
	return Query{Kind: models.QueryStructured, Path: "/"}
}

// Value is a retrieved configuration fragment: a nested mapping for
// structured devices, a raw document for subtree devices.
type Value struct {
	Tree map[string]any
	Raw  string
}

// Empty reports whether retrieval matched nothing.
func (v *Value) Empty() bool {
	if v == nil {
		return true
	}
	return len(v.Tree) == 0 && v.Raw == ""
}

// Render returns a stable string form of the value, used for pattern matches
// and audit trails.
func (v *Value) Render() string {
	if v == nil {
		return ""
	}
	if v.Tree != nil {
		b, err := json.Marshal(v.Tree)
		if err != nil {
			return fmt.Sprintf("%v", v.Tree)
		}
		return string(b)
	}
	return v.Raw
}

// ApplyOutcome is the device's verdict on a pushed payload. Applied=false
// with a nil error means the device rejected the change; transport failures
// surface as errors instead.
type ApplyOutcome struct {
	Applied bool
	Detail  string
}

// Connector is one device session. Open before use, Close when done. All
// calls honor the context deadline; exceeding it surfaces as ConnectError.
type Connector interface {
	Open(ctx context.Context) error
	GetConfig(ctx context.Context, q Query) (*Value, error)
	ApplyConfig(ctx context.Context, payload any) (ApplyOutcome, error)
	Close() error
}

// Dialer builds connectors for devices, picking the variant once per device
// from its vendor tag.
type Dialer struct {
	// Timeout bounds each connector call.
	Timeout time.Duration
	// HTTPClient overrides the client used by structured connectors. Test hook.
	HTTPClient *http.Client
}

// ForDevice returns a connector matching the device's capability, or an error
// for vendors outside the closed set.
func (d *Dialer) ForDevice(dev models.Device, cred models.Credential) (Connector, error) {
	capability, ok := dev.Vendor.Capability()
	if !ok {
		return nil, fmt.Errorf("unknown vendor %q for device %s", dev.Vendor, dev.Name)
	}

	timeout := d.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	switch capability {
	case models.CapStructured:
		return newStructured(dev, cred, timeout, d.HTTPClient), nil
	case models.CapSubtree:
		return newNetconf(dev, cred, timeout), nil
	}
	return nil, fmt.Errorf("unhandled capability %q", capability)
}
