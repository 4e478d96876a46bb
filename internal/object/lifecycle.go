package object

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/durable/internal/codec"
	"github.com/rs/zerolog/log"
)

// StateKey is the record under which an object's state is persisted.
const StateKey = "__state"

var (
	ErrCorrupt   = errors.New("object: persisted state corrupt")
	ErrConstruct = errors.New("object: construct failed")
)

// Status is the result of lifecycle resolution.
type Status int

const (
	StatusMissing Status = iota
	StatusInitialized
	StatusLoaded
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusLoaded:
		return "loaded"
	default:
		return "missing"
	}
}

// Outcome carries the resolved state. State is the zero value when Status is
// StatusMissing.
type Outcome[S any] struct {
	Status Status
	State  S
}

// LifecycleError is returned by Resolve when no outcome could be produced.
// Reason is ErrCorrupt, ErrConstruct or ErrStorageUnavailable.
type LifecycleError struct {
	Reason error
	Err    error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%v: %v", e.Reason, e.Err)
}

func (e *LifecycleError) Unwrap() []error {
	return []error{e.Reason, e.Err}
}

// Lifecycle decides how a live state value is obtained for one request.
type Lifecycle[I, C, R, S any] struct {
	kind  Kind[I, C, R, S]
	codec codec.Codec
}

func NewLifecycle[I, C, R, S any](kind Kind[I, C, R, S], c codec.Codec) *Lifecycle[I, C, R, S] {
	return &Lifecycle[I, C, R, S]{kind: kind, codec: c}
}

// Resolve constructs from env.Init when present, otherwise loads persisted
// state. A construct or encode failure writes nothing.
func (l *Lifecycle[I, C, R, S]) Resolve(ctx context.Context, obj *Ctx, env Envelope[I, C]) (Outcome[S], error) {
	if env.Init == nil {
		return l.Load(ctx, obj)
	}

	state, err := l.kind.Construct(ctx, obj, *env.Init)
	if err != nil {
		log.Debug().Msgf("object.Lifecycle.Resolve construct failed key=%q err=%v", obj.Key, err)
		return Outcome[S]{}, &LifecycleError{Reason: ErrConstruct, Err: err}
	}
	if err := validateState(&state); err != nil {
		return Outcome[S]{}, &LifecycleError{Reason: ErrConstruct, Err: err}
	}
	data, err := l.codec.Marshal(state)
	if err != nil {
		return Outcome[S]{}, &LifecycleError{Reason: ErrConstruct, Err: fmt.Errorf("encode state: %w", err)}
	}
	if err := obj.Storage.Put(ctx, StateKey, data); err != nil {
		return Outcome[S]{}, &LifecycleError{Reason: ErrStorageUnavailable, Err: err}
	}
	log.Debug().Msgf("object.Lifecycle.Resolve initialized key=%q bytes=%d", obj.Key, len(data))
	return Outcome[S]{Status: StatusInitialized, State: state}, nil
}

// Load reads persisted state without ever constructing.
func (l *Lifecycle[I, C, R, S]) Load(ctx context.Context, obj *Ctx) (Outcome[S], error) {
	data, ok, err := obj.Storage.Get(ctx, StateKey)
	if err != nil {
		return Outcome[S]{}, &LifecycleError{Reason: ErrStorageUnavailable, Err: err}
	}
	if !ok {
		log.Debug().Msgf("object.Lifecycle.Load missing key=%q", obj.Key)
		return Outcome[S]{Status: StatusMissing}, nil
	}
	var state S
	if err := l.codec.Unmarshal(data, &state); err != nil {
		log.Error().Msgf("object.Lifecycle.Load corrupt key=%q err=%v", obj.Key, err)
		return Outcome[S]{}, &LifecycleError{Reason: ErrCorrupt, Err: err}
	}
	if err := validateState(&state); err != nil {
		log.Error().Msgf("object.Lifecycle.Load invalid key=%q err=%v", obj.Key, err)
		return Outcome[S]{}, &LifecycleError{Reason: ErrCorrupt, Err: err}
	}
	return Outcome[S]{Status: StatusLoaded, State: state}, nil
}
