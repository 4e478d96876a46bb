package object

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/durable/internal/storage"
)

// Ctx is the object-side view handed to kind hooks for one request.
type Ctx struct {
	Key     string
	Storage storage.Handle
}

// Kind is implemented once per object kind. I is the init payload, C the
// command, R the response and S the steady-state value persisted between
// requests.
//
// Construct must not write the state record itself; the lifecycle persists
// whatever Construct returns. Handle returns the next state, which is persisted
// only when Handle succeeds.
type Kind[I, C, R, S any] interface {
	Construct(ctx context.Context, obj *Ctx, init I) (S, error)
	Handle(ctx context.Context, obj *Ctx, state S, cmd C) (R, S, error)
}

// AlarmHandler is implemented by kinds that can be woken without a command.
type AlarmHandler[R, S any] interface {
	Alarm(ctx context.Context, obj *Ctx, state S) (R, S, error)
}

// Validator is checked on loaded state; a failure marks the record corrupt.
type Validator interface {
	Validate() error
}

// Rejection is a domain-level failure surfaced verbatim to the caller.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return r.Code
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Reject builds a Rejection for a kind to return from its hooks.
func Reject(code, message string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		code = RejectInternal
	}
	return &Rejection{Code: code, Message: message}
}

// Rejection codes used by the dispatcher itself.
const (
	RejectInternal         = "internal"
	RejectEncode           = "encode"
	RejectAlarmUnsupported = "alarm_unsupported"
)

func validateState[S any](state *S) error {
	if v, ok := any(*state).(Validator); ok {
		return v.Validate()
	}
	if v, ok := any(state).(Validator); ok {
		return v.Validate()
	}
	return nil
}
