package host

import (
	"context"

	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/storage"
)

// Dispatch is the untyped method set of *object.Dispatcher, so bindings of
// different kinds can share one registry.
type Dispatch interface {
	Codec() codec.Codec
	Handle(ctx context.Context, key string, raw []byte, store storage.Handle) ([]byte, error)
	Alarm(ctx context.Context, key string, store storage.Handle) ([]byte, error)
}

// Object is one addressable instance as the host sees it.
type Object interface {
	HandleRaw(ctx context.Context, raw []byte) ([]byte, error)
	Alarm(ctx context.Context) ([]byte, error)
}

// Binding constructs objects of one kind.
type Binding interface {
	Metadata() Metadata
	Construct(id string, store storage.Handle) Object
}

// NewBinding adapts a dispatcher to the host's construct/handle hooks.
func NewBinding(name, description string, d Dispatch) Binding {
	return &binding{
		meta: Metadata{
			Name:        name,
			Description: description,
			Codec:       d.Codec().Name(),
		},
		dispatch: d,
	}
}

type binding struct {
	meta     Metadata
	dispatch Dispatch
}

func (b *binding) Metadata() Metadata { return b.meta }

func (b *binding) Construct(id string, store storage.Handle) Object {
	return &boundObject{id: id, store: store, dispatch: b.dispatch}
}

type boundObject struct {
	id       string
	store    storage.Handle
	dispatch Dispatch
}

func (o *boundObject) HandleRaw(ctx context.Context, raw []byte) ([]byte, error) {
	return o.dispatch.Handle(ctx, o.id, raw, o.store)
}

func (o *boundObject) Alarm(ctx context.Context) ([]byte, error) {
	return o.dispatch.Alarm(ctx, o.id, o.store)
}
