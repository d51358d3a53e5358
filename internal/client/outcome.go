package client

import (
	"fmt"
	"net/http"
)

// Status classifies the result of a send.
type Status int

const (
	// Success means the service accepted the data.
	Success Status = iota
	// PermanentFailure means the service rejected the data; resending will not help.
	PermanentFailure
	// TransientFailure means the data may be accepted later.
	TransientFailure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case PermanentFailure:
		return "permanent failure"
	case TransientFailure:
		return "transient failure"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome is the tagged result of PostMetrics.
type Outcome struct {
	Status     Status
	StatusCode int   // HTTP status, 0 when no response arrived
	Err        error // nil on success
}

// Classify maps a response code or transport error onto an Outcome.
func Classify(code int, err error) Outcome {
	if err != nil {
		return Outcome{Status: TransientFailure, Err: err}
	}
	switch {
	case code >= 200 && code < 300:
		return Outcome{Status: Success, StatusCode: code}
	case code >= 400 && code < 500:
		return Outcome{Status: PermanentFailure, StatusCode: code, Err: &StatusError{StatusCode: code}}
	default:
		return Outcome{Status: TransientFailure, StatusCode: code, Err: &StatusError{StatusCode: code}}
	}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the server signalled a transient condition.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
