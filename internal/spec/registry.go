package spec

import "sync/atomic"

// Registry holds the live type table. Readers never block a reload.
type Registry struct {
	current atomic.Pointer[Types]
}

func NewRegistry(types Types) *Registry {
	r := &Registry{}
	r.Replace(types)
	return r
}

func (r *Registry) Lookup(name string) (ServiceType, error) {
	return r.Snapshot().Lookup(name)
}

func (r *Registry) Snapshot() Types {
	return *r.current.Load()
}

func (r *Registry) Replace(types Types) {
	copied := Types{}.Merge(types)
	r.current.Store(&copied)
}
