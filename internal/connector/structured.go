package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/netwarden/netwarden/internal/models"
)

// structuredConn retrieves configuration from model-driven devices over a
// RESTCONF-style HTTP datastore API and filters the returned subtree
// client-side.
type structuredConn struct {
	device   models.Device
	base     string
	username string
	password string
	client   *http.Client
	timeout  time.Duration
	opened   bool
}

func newStructured(dev models.Device, cred models.Credential, timeout time.Duration, client *http.Client) *structuredConn {
	port := dev.Port
	if port == 0 {
		port = 443
	}
	scheme := "http"
	if port == 443 {
		scheme = "https"
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &structuredConn{
		device:   dev,
		base:     fmt.Sprintf("%s://%s:%d/restconf/data", scheme, dev.Address, port),
		username: cred.Username,
		password: cred.Password,
		client:   client,
		timeout:  timeout,
	}
}

func (c *structuredConn) Open(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Device: c.device.Name, Err: fmt.Errorf("status %d", status)}
	}
	if status >= 500 {
		return &ConnectError{Op: "open", Err: fmt.Errorf("status %d", status)}
	}
	c.opened = true
	return nil
}

func (c *structuredConn) GetConfig(ctx context.Context, q Query) (*Value, error) {
	if q.Kind != models.QueryStructured {
		return nil, &QueryError{Detail: fmt.Sprintf("structured connector cannot execute %q query", q.Kind)}
	}
	path := q.Path
	if path == "" || !strings.HasPrefix(path, "/") {
		return nil, &QueryError{Detail: fmt.Sprintf("invalid path %q", path)}
	}

	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &AuthError{Device: c.device.Name, Err: fmt.Errorf("status %d", status)}
	case status == http.StatusBadRequest:
		return nil, &QueryError{Detail: fmt.Sprintf("device rejected path %q", path)}
	case status >= 500:
		return nil, &ConnectError{Op: "get-config", Err: fmt.Errorf("status %d", status)}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ConnectError{Op: "get-config", Err: fmt.Errorf("malformed device response: %w", err)}
	}

	tree := asTree(decoded, path)
	filtered, ok := applyFilter(tree, q.Filter)
	if !ok {
		// The path exists but no instances satisfy the filter.
		return &Value{}, nil
	}
	return &Value{Tree: asTree(filtered, path)}, nil
}

// asTree wraps non-mapping results under the queried leaf name so callers
// always receive a nested mapping.
func asTree(v any, path string) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	if v == nil {
		return nil
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	leaf := segs[len(segs)-1]
	if leaf == "" {
		leaf = "value"
	}
	return map[string]any{leaf: v}
}

func (c *structuredConn) ApplyConfig(ctx context.Context, payload any) (ApplyOutcome, error) {
	coerced, err := coercePayload(payload)
	if err != nil {
		return ApplyOutcome{}, err
	}
	body, err := jsonBody(coerced)
	if err != nil {
		return ApplyOutcome{}, err
	}

	status, respBody, err := c.do(ctx, http.MethodPatch, "/", bytes.NewReader(body))
	if err != nil {
		return ApplyOutcome{}, err
	}
	switch {
	case status >= 200 && status < 300:
		return ApplyOutcome{Applied: true, Detail: fmt.Sprintf("status %d", status)}, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ApplyOutcome{}, &AuthError{Device: c.device.Name, Err: fmt.Errorf("status %d", status)}
	case status >= 500:
		return ApplyOutcome{}, &ConnectError{Op: "apply-config", Err: fmt.Errorf("status %d", status)}
	}

	detail := strings.TrimSpace(string(respBody))
	if len(detail) > 256 {
		detail = detail[:256]
	}
	return ApplyOutcome{Applied: false, Detail: fmt.Sprintf("status %d: %s", status, detail)}, nil
}

func (c *structuredConn) Close() error {
	c.opened = false
	return nil
}

// do issues one bounded HTTP call and returns the status and body. Transport
// failures map to ConnectError.
func (c *structuredConn) do(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.base
	if path != "/" {
		url += path
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, body)
	if err != nil {
		return 0, nil, &QueryError{Detail: err.Error()}
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/yang-data+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/yang-data+json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, &ConnectError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, &ConnectError{Op: method + " " + path, Err: err}
	}
	return resp.StatusCode, data, nil
}
