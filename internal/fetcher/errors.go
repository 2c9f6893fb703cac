package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rotisserie/eris"
)

// ErrorKind distinguishes the ways a request can fail.
type ErrorKind int

const (
	// KindNetwork covers connection, DNS and protocol failures.
	KindNetwork ErrorKind = iota + 1
	// KindStatus is a response with a status other than 200.
	KindStatus
	// KindTimeout means the bounded wait expired before a response.
	KindTimeout
)

// String returns the human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// maxErrorBody caps how much of a failed response body is kept for logs.
const maxErrorBody = 512

// RequestError is returned for every unsuccessful request.
type RequestError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int    // set for KindStatus
	Body       string // truncated response body, set for KindStatus
	Err        error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("fetcher: unexpected status %d from %s", e.StatusCode, e.URL)
	default:
		return fmt.Sprintf("fetcher: %s error from %s: %v", e.Kind, e.URL, e.Err)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a request error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// IsTimeout reports whether err is a request that ran out of time.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

func transportError(rawURL string, err error) *RequestError {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &RequestError{Kind: kind, URL: rawURL, Err: err}
}

func statusError(rawURL string, status int, body []byte) *RequestError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &RequestError{
		Kind:       KindStatus,
		URL:        rawURL,
		StatusCode: status,
		Body:       string(body),
		Err:        eris.Errorf("http %d", status),
	}
}
