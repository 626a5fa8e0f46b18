// Package apperr classifies failures into the kinds the CLI reports and
// maps each kind to a process exit code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers bad arguments, conflicting flags and unknown models.
	KindValidation
	// KindConfiguration covers missing API keys and unusable directories.
	KindConfiguration
	// KindTransient is retried internally and never leaves the retry loop as is.
	KindTransient
	// KindNetwork is a transient failure that outlived every retry.
	KindNetwork
	KindAPI
	KindContentPolicy
	// KindSessionState is a corrupt session file. Callers warn and continue.
	KindSessionState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindTransient:
		return "transient"
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	case KindContentPolicy:
		return "content policy"
	case KindSessionState:
		return "session state"
	default:
		return "unknown"
	}
}

const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitValidation    = 2
	ExitConfiguration = 3
	ExitNetwork       = 4
	ExitContentPolicy = 5
)

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func Configuration(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindValidation:
		return ExitValidation
	case KindConfiguration:
		return ExitConfiguration
	case KindNetwork, KindTransient:
		return ExitNetwork
	case KindContentPolicy:
		return ExitContentPolicy
	default:
		return ExitFailure
	}
}
