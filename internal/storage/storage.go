// Package storage owns the key/value persistence boundary attached to objects.
//
// Ownership boundary:
// - per-object Handle contract (get/put/delete, single-key atomic writes)
// - Backend contract that scopes handles by namespace
// - engine implementations live in subpackages (memory, sqlite)
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyKey       = errors.New("storage: empty key")
	ErrEmptyNamespace = errors.New("storage: empty namespace")
	ErrClosed         = errors.New("storage: backend closed")
)

// Handle is the key/value view one object has of its storage. Writes to a
// single key are atomic: readers observe either the old or the new value.
type Handle interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by handles that can enumerate their keys.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Backend hands out handles scoped to one namespace each.
type Backend interface {
	Handle(namespace string) Handle
	Close() error
}

// Namespace joins a binding name and an object id into a storage namespace.
func Namespace(binding, id string) string {
	return strings.TrimSpace(binding) + "/" + strings.TrimSpace(id)
}

// ValidateKey rejects keys that cannot address a record.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// ValidateNamespace rejects namespaces that cannot scope a handle.
func ValidateNamespace(ns string) error {
	if strings.TrimSpace(ns) == "" {
		return ErrEmptyNamespace
	}
	return nil
}

// KeyError attaches the failing key to an engine error.
type KeyError struct {
	Op  string
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("storage: %s key=%q: %v", e.Op, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }
