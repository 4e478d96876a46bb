package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/object"
)

var ErrDecodeResponse = errors.New("proxy: decode response")

// Namespace addresses objects of one binding.
type Namespace[I, C, R any] struct {
	binding   string
	transport Transport
	codec     codec.Codec
	nextID    atomic.Uint64
}

func NewNamespace[I, C, R any](binding string, t Transport, c codec.Codec) *Namespace[I, C, R] {
	if c == nil {
		c = codec.JSON{}
	}
	return &Namespace[I, C, R]{binding: binding, transport: t, codec: c}
}

func (n *Namespace[I, C, R]) Binding() string {
	return n.binding
}

// Obj addresses the object derived from name. The same name always reaches
// the same object.
func (n *Namespace[I, C, R]) Obj(name string) *Proxy[I, C, R] {
	return &Proxy[I, C, R]{ns: n, id: object.IDFromName(n.binding, name)}
}

func (n *Namespace[I, C, R]) ObjFromID(id string) (*Proxy[I, C, R], error) {
	oid, err := object.ParseID(id)
	if err != nil {
		return nil, err
	}
	return &Proxy[I, C, R]{ns: n, id: oid}, nil
}

// UniqueObj addresses a fresh object no other caller knows about.
func (n *Namespace[I, C, R]) UniqueObj() *Proxy[I, C, R] {
	return &Proxy[I, C, R]{ns: n, id: object.UniqueID()}
}

// Proxy is a typed handle on one object.
type Proxy[I, C, R any] struct {
	ns *Namespace[I, C, R]
	id string
}

func (p *Proxy[I, C, R]) ID() string {
	return p.id
}

// Send delivers cmd without init. A fresh object answers with
// object.ErrUninitialized.
func (p *Proxy[I, C, R]) Send(ctx context.Context, cmd C) (R, error) {
	return p.send(ctx, object.NewEnvelope[I](cmd))
}

// Init starts a request that constructs the object from init when it does
// not exist yet.
func (p *Proxy[I, C, R]) Init(init I) *Builder[I, C, R] {
	return &Builder[I, C, R]{proxy: p, env: object.Envelope[I, C]{Init: &init}}
}

// Alarm wakes the object without a command.
func (p *Proxy[I, C, R]) Alarm(ctx context.Context) (R, error) {
	reply, err := p.ns.transport.Alarm(ctx, p.ns.binding, p.id)
	if err != nil {
		var zero R
		return zero, err
	}
	return p.decode(reply)
}

func (p *Proxy[I, C, R]) send(ctx context.Context, env object.Envelope[I, C]) (R, error) {
	var zero R
	raw, err := object.EncodeEnvelope(p.ns.codec, p.ns.nextID.Add(1), env)
	if err != nil {
		return zero, err
	}
	reply, err := p.ns.transport.RoundTrip(ctx, p.ns.binding, p.id, raw)
	if err != nil {
		return zero, err
	}
	return p.decode(reply)
}

func (p *Proxy[I, C, R]) decode(reply []byte) (R, error) {
	var resp R
	out, err := object.DecodeReply(reply)
	if err != nil {
		return resp, err
	}
	if err := p.ns.codec.Unmarshal(out, &resp); err != nil {
		return resp, fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	return resp, nil
}

// Builder carries an init payload until the command is known.
type Builder[I, C, R any] struct {
	proxy *Proxy[I, C, R]
	env   object.Envelope[I, C]
}

// Command sets the command without sending. AndSend replaces it.
func (b *Builder[I, C, R]) Command(cmd C) *Builder[I, C, R] {
	b.env.Command = cmd
	return b
}

// Envelope returns what would be sent.
func (b *Builder[I, C, R]) Envelope() object.Envelope[I, C] {
	return b.env
}

// AndSend is the only way a builder reaches the wire, so every request it
// produces carries a command.
func (b *Builder[I, C, R]) AndSend(ctx context.Context, cmd C) (R, error) {
	return b.proxy.send(ctx, b.Command(cmd).env)
}
