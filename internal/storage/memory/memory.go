package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/durable/internal/storage"
)

// Backend is an in-memory storage engine. Values are copied on the way in and
// out so callers never share backing arrays with the store.
type Backend struct {
	mu     sync.RWMutex
	spaces map[string]map[string][]byte
	closed bool
}

// New constructs an empty in-memory backend.
func New() *Backend {
	return &Backend{
		spaces: make(map[string]map[string][]byte),
	}
}

// Handle returns the view of one namespace.
func (b *Backend) Handle(namespace string) storage.Handle {
	return &Handle{backend: b, namespace: namespace}
}

// Close marks the backend closed; later operations fail with storage.ErrClosed.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Len reports the number of records stored under namespace.
func (b *Backend) Len(namespace string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.spaces[namespace])
}

// Handle is a namespace-scoped view of a Backend.
type Handle struct {
	backend   *Backend
	namespace string
}

var (
	_ storage.Handle = (*Handle)(nil)
	_ storage.Lister = (*Handle)(nil)
)

func (h *Handle) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := h.check(ctx, key); err != nil {
		return nil, false, err
	}
	h.backend.mu.RLock()
	defer h.backend.mu.RUnlock()
	if h.backend.closed {
		return nil, false, storage.ErrClosed
	}
	val, ok := h.backend.spaces[h.namespace][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

func (h *Handle) Put(ctx context.Context, key string, value []byte) error {
	if err := h.check(ctx, key); err != nil {
		return err
	}
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if h.backend.closed {
		return storage.ErrClosed
	}
	space, ok := h.backend.spaces[h.namespace]
	if !ok {
		space = make(map[string][]byte)
		h.backend.spaces[h.namespace] = space
	}
	space[key] = append([]byte(nil), value...)
	return nil
}

func (h *Handle) Delete(ctx context.Context, key string) error {
	if err := h.check(ctx, key); err != nil {
		return err
	}
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if h.backend.closed {
		return storage.ErrClosed
	}
	space := h.backend.spaces[h.namespace]
	delete(space, key)
	if len(space) == 0 {
		delete(h.backend.spaces, h.namespace)
	}
	return nil
}

// List returns keys with the given prefix in ascending order.
func (h *Handle) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.backend.mu.RLock()
	defer h.backend.mu.RUnlock()
	if h.backend.closed {
		return nil, storage.ErrClosed
	}
	space := h.backend.spaces[h.namespace]
	keys := make([]string, 0, len(space))
	for k := range space {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (h *Handle) check(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.ValidateNamespace(h.namespace); err != nil {
		return err
	}
	return storage.ValidateKey(key)
}
