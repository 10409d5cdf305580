package xychain

import (
	"errors"
	"fmt"
	"time"
)

// ErrSchemaMismatch marks a node that does not expose what the schema declares.
var ErrSchemaMismatch = errors.New("schema mismatch")

// ErrClosed is returned for calls on a released handle.
var ErrClosed = errors.New("connection closed")

// ConnectionError is a transport or schema failure. It is fatal for the run;
// the harness never retries.
type ConnectionError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s (%s): %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SubmissionRejected means the node refused the extrinsic: the RPC rejected
// it on submission or its status stream reported invalid, dropped or usurped.
type SubmissionRejected struct {
	Call   string
	Status string
	Err    error
}

func (e *SubmissionRejected) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extrinsic %s rejected: %v", e.Call, e.Err)
	}
	return fmt.Sprintf("extrinsic %s rejected with status %s", e.Call, e.Status)
}

func (e *SubmissionRejected) Unwrap() error { return e.Err }

// SubmissionTimeout means no inBlock status arrived within the wait bound.
type SubmissionTimeout struct {
	Call       string
	Waited     time.Duration
	LastStatus string
	Err        error
}

func (e *SubmissionTimeout) Error() string {
	last := e.LastStatus
	if last == "" {
		last = "none"
	}
	return fmt.Sprintf("extrinsic %s not included after %s (last status: %s)", e.Call, e.Waited.Round(time.Millisecond), last)
}

func (e *SubmissionTimeout) Unwrap() error { return e.Err }

// IsFatal reports whether err should abort a whole run rather than a single
// scenario.
func IsFatal(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
