package host

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrBindingExists   = errors.New("host: binding already registered")
	ErrBindingNil      = errors.New("host: binding is nil")
	ErrBindingNotFound = errors.New("host: binding not found")
	ErrInvalidMetadata = errors.New("host: invalid binding metadata")
)

// Metadata identifies a binding.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Codec       string `json:"codec"`
}

// ValidateMetadata checks required fields and the name format.
func ValidateMetadata(meta Metadata) error {
	name := strings.TrimSpace(meta.Name)
	desc := strings.TrimSpace(meta.Description)
	if name == "" || desc == "" {
		return fmt.Errorf("%w: name and description are required", ErrInvalidMetadata)
	}
	if !isValidName(name) {
		return fmt.Errorf("%w: invalid name format %q", ErrInvalidMetadata, name)
	}
	return nil
}

// Registry stores bindings by name.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Binding
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Binding)}
}

func (r *Registry) Register(b Binding) error {
	if b == nil {
		return ErrBindingNil
	}
	meta := b.Metadata()
	if err := ValidateMetadata(meta); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[meta.Name]; ok {
		return fmt.Errorf("%w: %q", ErrBindingExists, meta.Name)
	}
	r.items[meta.Name] = b
	return nil
}

func (r *Registry) Resolve(name string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[name]
	return b, ok
}

// ListMetadata returns metadata ordered by name.
func (r *Registry) ListMetadata() []Metadata {
	r.mu.RLock()
	list := make([]Metadata, 0, len(r.items))
	for _, b := range r.items {
		list = append(list, b.Metadata())
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

func isValidName(name string) bool {
	if name == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(name)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
