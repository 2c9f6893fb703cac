package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies a batch failure.
type Kind int

const (
	// TransportError covers network failures, non-200 statuses and timeouts.
	TransportError Kind = iota + 1
	// ParseError is a malformed response body.
	ParseError
	// MigrationError is a failed table creation or column addition.
	MigrationError
	// InsertError is a failed insert statement.
	InsertError
)

func (k Kind) String() string {
	switch k {
	case TransportError:
		return "transport"
	case ParseError:
		return "parse"
	case MigrationError:
		return "migration"
	case InsertError:
		return "insert"
	default:
		return "unknown"
	}
}

// Stage names a step of the per-batch pipeline.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageParse   Stage = "parse"
	StageMigrate Stage = "migrate"
	StageCreate  Stage = "create_table"
	StageInsert  Stage = "insert"
)

// BatchError is a failure of one batch. Fatal errors end the run; the rest
// only abandon their batch.
type BatchError struct {
	Stage Stage
	Kind  Kind
	Spec  BatchSpec
	Query string
	Fatal bool
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("ingest: %s %s (%s) failed at %s: %v",
		e.Spec.Place, e.Spec.Filter, e.Kind, e.Stage, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a run-fatal BatchError.
func IsFatal(err error) bool {
	var be *BatchError
	return errors.As(err, &be) && be.Fatal
}

// KindOf returns the Kind of the BatchError in err's chain, or 0.
func KindOf(err error) Kind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}
