package connector

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a queried configuration path does not exist on the
// device. The evaluator decides whether that is a compliance failure.
var ErrNotFound = errors.New("config path not found")

// ConnectError is a transport-level failure (timeout, unreachable host).
// Retryable: callers may re-issue the call within their retry budget.
type ConnectError struct {
	Op  string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect: %s: %v", e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError means the device rejected our credentials. Fatal for this device;
// the run continues for others.
type AuthError struct {
	Device string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for %s: %v", e.Device, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// QueryError is a malformed path or filter. A rule-authoring defect, never
// retried.
type QueryError struct {
	Detail string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %s", e.Detail)
}

// ConfigParseError reports a remediation payload that could not be parsed
// even after lenient correction. Surfaced verbatim so the operator can fix
// the reference payload.
type ConfigParseError struct {
	Line    int
	Excerpt string
	Err     error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("config parse error at line %d: %v (near %q)", e.Line, e.Err, e.Excerpt)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient transport failure worth
// another attempt.
func IsRetryable(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}
