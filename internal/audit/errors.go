package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Sentinel errors shared across store implementations.
var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrJobExists signals a duplicate job ID on create.
	ErrJobExists = errors.New("job already exists")
	// ErrVersionConflict signals that another writer advanced the job first.
	ErrVersionConflict = errors.New("job version conflict")
	// ErrInvalidInput rejects malformed requests before any I/O.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind buckets per-URL failures for diagnostics.
type ErrorKind string

// Error kinds recorded on failed crawls.
const (
	KindInput    ErrorKind = "input"
	KindNetwork  ErrorKind = "network"
	KindTimeout  ErrorKind = "timeout"
	KindBlocked  ErrorKind = "blocked"
	KindParse    ErrorKind = "parse"
	KindInternal ErrorKind = "internal"
	KindUnknown  ErrorKind = "unknown"
)

// ClassifyFetchError maps a transport error and/or HTTP status to an
// ErrorKind. Status takes precedence for blocked responses since upstream
// bot defenses answer quickly and cleanly.
func ClassifyFetchError(status int, err error) ErrorKind {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		return KindBlocked
	}
	if err == nil {
		if status >= 400 {
			return KindUnknown
		}
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}
	return KindUnknown
}
