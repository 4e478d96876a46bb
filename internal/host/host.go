package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/durable/internal/object"
	"github.com/danmuck/durable/internal/observability"
	"github.com/danmuck/durable/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	opHandle = "handle"
	opAlarm  = "alarm"
)

// Host routes frames to objects, admitting one dispatch per object at a time.
type Host struct {
	ID       string
	registry *Registry
	backend  storage.Backend
	locks    *keyLocks
}

func New(id string, backend storage.Backend, registry *Registry) *Host {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Host{
		ID:       id,
		registry: registry,
		backend:  backend,
		locks:    newKeyLocks(),
	}
}

func (h *Host) Registry() *Registry {
	return h.registry
}

// Reply is a framed dispatch outcome. Err mirrors what the error frame
// carries and is nil for a response frame.
type Reply struct {
	Frame []byte
	Err   error
}

// Result is "ok" or the dispatch error kind name.
func (r Reply) Result() string {
	if r.Err == nil {
		return "ok"
	}
	var de *object.DispatchError
	if errors.As(r.Err, &de) {
		return object.KindName(de.Kind)
	}
	return object.KindName(object.ErrHandler)
}

// Serve runs one request frame against binding/id. The returned error is
// reserved for routing failures; dispatch failures travel inside Reply.
func (h *Host) Serve(ctx context.Context, binding, id string, raw []byte) (Reply, error) {
	obj, key, err := h.object(binding, id)
	if err != nil {
		return Reply{}, err
	}
	start := time.Now()
	unlock := h.locks.Lock(key)
	out, dispatchErr := obj.HandleRaw(ctx, raw)
	unlock()
	return h.reply(binding, opHandle, key, object.RequestID(raw), out, dispatchErr, start)
}

// Alarm wakes binding/id without a command.
func (h *Host) Alarm(ctx context.Context, binding, id string) (Reply, error) {
	obj, key, err := h.object(binding, id)
	if err != nil {
		return Reply{}, err
	}
	start := time.Now()
	unlock := h.locks.Lock(key)
	out, dispatchErr := obj.Alarm(ctx)
	unlock()
	return h.reply(binding, opAlarm, key, 0, out, dispatchErr, start)
}

func (h *Host) object(binding, id string) (Object, string, error) {
	b, ok := h.registry.Resolve(binding)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrBindingNotFound, binding)
	}
	oid, err := object.ParseID(id)
	if err != nil {
		return nil, "", err
	}
	ns := storage.Namespace(binding, oid)
	return b.Construct(oid, h.backend.Handle(ns)), ns, nil
}

func (h *Host) reply(binding, op, key string, messageID uint64, out []byte, dispatchErr error, start time.Time) (Reply, error) {
	frame, err := object.EncodeReply(messageID, out, dispatchErr)
	if err != nil {
		return Reply{}, fmt.Errorf("host: encode reply: %w", err)
	}
	r := Reply{Frame: frame, Err: dispatchErr}
	observability.RecordDispatch(binding, op, r.Result(), time.Since(start))
	if dispatchErr != nil {
		log.Debug().Msgf("host.Host.%s key=%s result=%s err=%v", op, key, r.Result(), dispatchErr)
	}
	return r, nil
}

// StatusFor maps a dispatch outcome to an HTTP status.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch {
	case errors.Is(err, object.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, object.ErrUninitialized):
		return http.StatusNotFound
	case errors.Is(err, object.ErrHandler):
		return http.StatusUnprocessableEntity
	case errors.Is(err, object.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
