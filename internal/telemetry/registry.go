package telemetry

import (
	"fmt"
	"sync"
)

// Registry maps header tags to frame schemas. It is built once and is
// read-only afterwards, so it is safe to share between goroutines.
type Registry struct {
	byTag map[Tag]*Schema
	order []*Schema
}

// NewRegistry validates and indexes the given schemas.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{
		byTag: make(map[Tag]*Schema, len(schemas)),
		order: make([]*Schema, 0, len(schemas)),
	}
	for i := range schemas {
		s := schemas[i]
		if err := s.validate(); err != nil {
			return nil, err
		}
		if existing, ok := r.byTag[s.Tag]; ok {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateTag, s.Tag, existing.Name, s.Name)
		}
		owned := s.clone()
		r.byTag[s.Tag] = owned
		r.order = append(r.order, owned)
	}
	return r, nil
}

// MustRegistry is NewRegistry for process start-up, where a bad schema
// table is a configuration error.
func MustRegistry(schemas ...Schema) *Registry {
	r, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the registry of every variant the flight
// computer transmits.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = MustRegistry(CompactSchema(), ExtendedSchema())
	})
	return defaultRegistry
}

// Lookup returns a copy of the schema registered for tag.
func (r *Registry) Lookup(tag Tag) (*Schema, bool) {
	s, ok := r.byTag[tag]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// lookup returns the shared schema for the decode path, which never
// hands it out.
func (r *Registry) lookup(tag Tag) (*Schema, bool) {
	s, ok := r.byTag[tag]
	return s, ok
}

// Schemas returns copies of the registered schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, len(r.order))
	for i, s := range r.order {
		out[i] = s.clone()
	}
	return out
}

// ByName returns a copy of the schema with the given name.
func (r *Registry) ByName(name string) (*Schema, bool) {
	for _, s := range r.order {
		if s.Name == name {
			return s.clone(), true
		}
	}
	return nil, false
}
