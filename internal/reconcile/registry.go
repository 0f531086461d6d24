package reconcile

import "github.com/ritza-co/bryntum-backend-guides/internal/store"

// Registry maps the phantom ids of rows created during one sync request to
// the keys the store assigned them. It lives for a single request.
type Registry struct {
	keys map[string]map[string]store.Key
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]map[string]store.Key)}
}

// Register records that token in collection now names key.
func (r *Registry) Register(collection, token string, key store.Key) {
	byToken, ok := r.keys[collection]
	if !ok {
		byToken = make(map[string]store.Key)
		r.keys[collection] = byToken
	}
	byToken[token] = key
}

// Resolve returns the key registered for token in collection.
func (r *Registry) Resolve(collection, token string) (store.Key, bool) {
	key, ok := r.keys[collection][token]
	return key, ok
}

// Len is the number of registered phantom ids.
func (r *Registry) Len() int {
	n := 0
	for _, byToken := range r.keys {
		n += len(byToken)
	}
	return n
}
