// Package registry provides one generic keyed upsert collection used
// for both the ClientRegistry (C5) and RouterRegistry (C7) of spec
// §4.5. It generalizes the teacher's repeated per-concern "ByRoute"
// map-with-mutex idiom with Go generics instead of duplicating the
// struct once per concern.
package registry

import (
	"strings"
	"sync"
)

// Profile is the minimal capability a registry key source needs.
type Profile[P any] interface {
	Key() string
	FieldsEqual(other P) bool
}

// Factory builds a Consumer from a Profile, and disposes of one when
// it is replaced or removed.
type Factory[P any, C any] interface {
	Build(p P) (C, error)
	Dispose(c C)
}

type entry[P any, C any] struct {
	profile  P
	consumer C
}

// Registry is a keyed collection of profile-backed consumers, guarded
// by a single mutex for all mutations, per spec §4.5/§5.
type Registry[P Profile[P], C any] struct {
	mu      sync.Mutex
	entries map[string]*entry[P, C]
	factory Factory[P, C]
}

// New builds an empty Registry using factory to construct consumers.
func New[P Profile[P], C any](factory Factory[P, C]) *Registry[P, C] {
	return &Registry[P, C]{
		entries: make(map[string]*entry[P, C]),
		factory: factory,
	}
}

// Upsert inserts, replaces, or no-ops profile p. It returns the
// displaced consumer (for disposal by the caller) and whether a
// replacement occurred. A nil displaced value with replaced=false means
// either a fresh insert or "no replacement" (Testable Property 3).
func (r *Registry[P, C]) Upsert(p P) (displaced C, replaced bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(p.Key())
	existing, ok := r.entries[key]
	if ok && existing.profile.FieldsEqual(p) {
		return displaced, false, nil
	}

	consumer, buildErr := r.factory.Build(p)
	if buildErr != nil {
		return displaced, false, buildErr
	}

	r.entries[key] = &entry[P, C]{profile: p, consumer: consumer}
	if ok {
		return existing.consumer, true, nil
	}
	return displaced, false, nil
}

// UpsertMany reconciles the registry against a full snapshot: entries
// absent from snapshot are removed (and returned for disposal);
// surviving entries are individually upserted. Build errors for one
// profile are collected but do not abort reconciliation of the rest.
func (r *Registry[P, C]) UpsertMany(snapshot []P) (removed []C, buildErrs []error) {
	wanted := make(map[string]struct{}, len(snapshot))
	for _, p := range snapshot {
		wanted[strings.ToLower(p.Key())] = struct{}{}
	}

	r.mu.Lock()
	for key, e := range r.entries {
		if _, ok := wanted[key]; !ok {
			removed = append(removed, e.consumer)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, p := range snapshot {
		if displaced, replaced, err := r.Upsert(p); err != nil {
			buildErrs = append(buildErrs, err)
		} else if replaced {
			r.factory.Dispose(displaced)
		}
	}

	return removed, buildErrs
}

// Get returns the consumer for id, and whether it was found.
func (r *Registry[P, C]) Get(id string) (C, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[strings.ToLower(id)]
	if !ok {
		var zero C
		return zero, false
	}
	return e.consumer, true
}

// Keys returns a snapshot of the current key set.
func (r *Registry[P, C]) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Values returns a snapshot of the current consumers.
func (r *Registry[P, C]) Values() []C {
	r.mu.Lock()
	defer r.mu.Unlock()
	vals := make([]C, 0, len(r.entries))
	for _, e := range r.entries {
		vals = append(vals, e.consumer)
	}
	return vals
}

// Count returns the number of entries currently held.
func (r *Registry[P, C]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
