package transform

import (
	"fmt"
	"sort"
	"strings"

	"ingest/pkg/errors"
)

// Registry maps dispatch keys to transformers. It is filled during startup
// and only read afterwards, so lookups take no lock.
type Registry struct {
	byKey map[string]Transformer
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Transformer)}
}

func normalizeKey(key string) string {
	return strings.Trim(key, "/")
}

// Register binds t to key. Leading and trailing slashes in key are ignored.
func (r *Registry) Register(key string, t Transformer) error {
	k := normalizeKey(key)
	if k == "" {
		return fmt.Errorf("transformer key cannot be empty")
	}
	if t == nil {
		return fmt.Errorf("transformer for key %q is nil", k)
	}
	if _, exists := r.byKey[k]; exists {
		return fmt.Errorf("transformer already registered for key %q", k)
	}
	r.byKey[k] = t
	return nil
}

func (r *Registry) MustRegister(key string, t Transformer) {
	if err := r.Register(key, t); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(key string) (Transformer, error) {
	if t, ok := r.byKey[normalizeKey(key)]; ok {
		return t, nil
	}
	return nil, errors.ErrNoTransformer.
		WithMessage(fmt.Sprintf("no transformer registered for key %q", key)).
		WithDetail("transformer_key", key)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Len() int {
	return len(r.byKey)
}
