package object

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/storage"
	"github.com/rs/zerolog/log"
)

// Observer receives lifecycle outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveLifecycle(status Status)
}

type Option func(*options)

type options struct {
	retry    RetryPolicy
	observer Observer
}

// WithPersistRetry retries failed state writes after a successful handler.
// Only useful when commands are idempotent.
func WithPersistRetry(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Dispatcher routes raw request bytes for one object kind.
type Dispatcher[I, C, R, S any] struct {
	kind      Kind[I, C, R, S]
	codec     codec.Codec
	lifecycle *Lifecycle[I, C, R, S]
	opts      options
}

func NewDispatcher[I, C, R, S any](kind Kind[I, C, R, S], c codec.Codec, opts ...Option) *Dispatcher[I, C, R, S] {
	if c == nil {
		c = codec.JSON{}
	}
	d := &Dispatcher[I, C, R, S]{
		kind:      kind,
		codec:     c,
		lifecycle: NewLifecycle(kind, c),
	}
	for _, opt := range opts {
		opt(&d.opts)
	}
	return d
}

func (d *Dispatcher[I, C, R, S]) Codec() codec.Codec {
	return d.codec
}

// Handle decodes raw, resolves the object at key and runs one command.
// Every failure is a *DispatchError.
func (d *Dispatcher[I, C, R, S]) Handle(ctx context.Context, key string, raw []byte, store storage.Handle) ([]byte, error) {
	env, err := DecodeEnvelope[I, C](d.codec, raw)
	if err != nil {
		var de *DecodeError
		segment := SegmentEnvelope
		if errors.As(err, &de) {
			segment = de.Segment
		}
		log.Debug().Msgf("object.Dispatcher.Handle decode failed key=%q segment=%s err=%v", key, segment, err)
		return nil, &DispatchError{Kind: ErrDecode, Segment: segment, Err: err}
	}

	obj := &Ctx{Key: key, Storage: store}
	outcome, err := d.lifecycle.Resolve(ctx, obj, env)
	if err != nil {
		return nil, lifecycleFailure(err)
	}
	d.observe(outcome.Status)
	if outcome.Status == StatusMissing {
		return nil, &DispatchError{Kind: ErrUninitialized}
	}

	resp, next, err := d.kind.Handle(ctx, obj, outcome.State, env.Command)
	if err != nil {
		log.Debug().Msgf("object.Dispatcher.Handle rejected key=%q err=%v", key, err)
		return nil, handlerFailure(err)
	}
	return d.commit(ctx, obj, resp, next)
}

// Alarm wakes the object at key without a command. It never initializes.
func (d *Dispatcher[I, C, R, S]) Alarm(ctx context.Context, key string, store storage.Handle) ([]byte, error) {
	alarm, ok := d.kind.(AlarmHandler[R, S])
	if !ok {
		return nil, &DispatchError{
			Kind:      ErrHandler,
			Rejection: &Rejection{Code: RejectAlarmUnsupported, Message: "kind has no alarm"},
		}
	}

	obj := &Ctx{Key: key, Storage: store}
	outcome, err := d.lifecycle.Load(ctx, obj)
	if err != nil {
		return nil, lifecycleFailure(err)
	}
	d.observe(outcome.Status)
	if outcome.Status == StatusMissing {
		return nil, &DispatchError{Kind: ErrUninitialized}
	}

	resp, next, err := alarm.Alarm(ctx, obj, outcome.State)
	if err != nil {
		return nil, handlerFailure(err)
	}
	return d.commit(ctx, obj, resp, next)
}

// commit validates the next state and encodes the response before writing,
// so a state the loader would reject is never stored.
func (d *Dispatcher[I, C, R, S]) commit(ctx context.Context, obj *Ctx, resp R, next S) ([]byte, error) {
	if err := validateState(&next); err != nil {
		log.Error().Msgf("object.Dispatcher.commit invalid state key=%q err=%v", obj.Key, err)
		return nil, &DispatchError{
			Kind:      ErrHandler,
			Rejection: &Rejection{Code: RejectInternal, Message: err.Error()},
			Err:       err,
		}
	}
	out, err := d.codec.Marshal(resp)
	if err != nil {
		return nil, &DispatchError{
			Kind:      ErrHandler,
			Rejection: &Rejection{Code: RejectEncode, Message: err.Error()},
			Err:       err,
		}
	}
	data, err := d.codec.Marshal(next)
	if err != nil {
		return nil, &DispatchError{Kind: ErrPersistFailed, Err: fmt.Errorf("encode state: %w", err)}
	}
	err = d.opts.retry.Do(ctx, func(ctx context.Context) error {
		return obj.Storage.Put(ctx, StateKey, data)
	})
	if err != nil {
		log.Error().Msgf("object.Dispatcher.commit persist failed key=%q err=%v", obj.Key, err)
		return nil, &DispatchError{Kind: ErrPersistFailed, Err: err}
	}
	return out, nil
}

func (d *Dispatcher[I, C, R, S]) observe(status Status) {
	if d.opts.observer != nil {
		d.opts.observer.ObserveLifecycle(status)
	}
}
