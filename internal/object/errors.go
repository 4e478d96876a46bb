package object

import (
	"errors"
	"fmt"
)

// Dispatch error kinds. A *DispatchError unwraps to exactly one of these.
var (
	ErrDecode             = errors.New("object: decode failed")
	ErrUninitialized      = errors.New("object: not initialized")
	ErrStorageCorrupt     = errors.New("object: storage corrupt")
	ErrPersistFailed      = errors.New("object: persist failed")
	ErrHandler            = errors.New("object: handler failed")
	ErrStorageUnavailable = errors.New("object: storage unavailable")
)

var kindNames = map[error]string{
	ErrDecode:             "decode",
	ErrUninitialized:      "uninitialized",
	ErrStorageCorrupt:     "storage_corrupt",
	ErrPersistFailed:      "persist_failed",
	ErrHandler:            "handler",
	ErrStorageUnavailable: "storage_unavailable",
}

// KindName returns the wire name of a dispatch error kind.
func KindName(kind error) string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return "unknown"
}

// KindByName reverses KindName; unknown names map to ErrHandler.
func KindByName(name string) error {
	for kind, n := range kindNames {
		if n == name {
			return kind
		}
	}
	return ErrHandler
}

// DispatchError is the single error type returned by Dispatcher.
type DispatchError struct {
	Kind      error
	Segment   string
	Rejection *Rejection
	Err       error
}

func (e *DispatchError) Error() string {
	switch {
	case e.Err != nil && e.Segment != "":
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Segment, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Rejection != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Rejection)
	default:
		return e.Kind.Error()
	}
}

func (e *DispatchError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	} else if e.Rejection != nil {
		errs = append(errs, e.Rejection)
	}
	return errs
}

// Retryable reports whether resending the same request may succeed. A
// persist failure is only safe to retry for idempotent commands, which the
// caller has to decide.
func (e *DispatchError) Retryable() bool {
	return e.Kind == ErrStorageUnavailable
}

func handlerFailure(err error) *DispatchError {
	var rej *Rejection
	if !errors.As(err, &rej) {
		rej = &Rejection{Code: RejectInternal, Message: err.Error()}
	}
	return &DispatchError{Kind: ErrHandler, Rejection: rej, Err: err}
}

func lifecycleFailure(err error) *DispatchError {
	switch {
	case errors.Is(err, ErrCorrupt):
		return &DispatchError{Kind: ErrStorageCorrupt, Err: err}
	case errors.Is(err, ErrConstruct):
		var le *LifecycleError
		if errors.As(err, &le) {
			return handlerFailure(le.Err)
		}
		return handlerFailure(err)
	default:
		return &DispatchError{Kind: ErrStorageUnavailable, Err: err}
	}
}
