package jsonrpc

import (
	"context"
	"slices"
	"sync"
)

// Registry is a frozen name → Descriptor mapping for one service definition.
// It is never mutated after Build, so Resolve needs no locking.
type Registry struct {
	methods map[string]*Descriptor
	names   []string // sorted
}

// Builder assembles a Registry. A service definition that extends others
// passes their registries to NewBuilder, most general first, and then
// registers its own procedures; any name registered later replaces the
// earlier descriptor.
type Builder struct {
	methods map[string]*Descriptor
	built   bool
}

// NewBuilder returns a builder seeded with the procedures of ancestors,
// copied in order so that later registries override earlier ones.
func NewBuilder(ancestors ...*Registry) *Builder {
	b := &Builder{methods: make(map[string]*Descriptor)}
	for _, a := range ancestors {
		if a == nil {
			continue
		}
		for name, d := range a.methods {
			b.methods[name] = d
		}
	}
	return b
}

// Register adds d, replacing any descriptor with the same name. It panics if
// called after Build or with a nil descriptor.
func (b *Builder) Register(ds ...*Descriptor) *Builder {
	if b.built {
		panic("jsonrpc: Register called on a built registry")
	}
	for _, d := range ds {
		if d == nil {
			panic("jsonrpc: Register called with a nil descriptor")
		}
		b.methods[d.Name] = d
	}
	return b
}

// Build freezes the builder and returns the registry.
func (b *Builder) Build() *Registry {
	b.built = true
	names := make([]string, 0, len(b.methods))
	for name := range b.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return &Registry{methods: b.methods, names: names}
}

// Extend returns a new registry holding r's procedures overridden and
// extended by procs.
func (r *Registry) Extend(procs ...*Descriptor) *Registry {
	return NewBuilder(r).Register(procs...).Build()
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.methods[name]
	return d, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Len returns the number of registered procedures.
func (r *Registry) Len() int { return len(r.names) }

// Describable returns the descriptors listed by introspection, sorted by
// name.
func (r *Registry) Describable() []*Descriptor {
	var out []*Descriptor
	for _, name := range r.names {
		if d := r.methods[name]; d.Describe {
			out = append(out, d)
		}
	}
	return out
}

// DescribeMethod is the name of the built-in introspection procedure.
const DescribeMethod = "system.describe"

var base = sync.OnceValue(func() *Registry {
	return NewBuilder().Register(
		Proc(DescribeMethod+"() -> <obj>", describeProc, Safe(), Hidden()),
	).Build()
})

// Base returns the root registry every service definition should extend. It
// holds the built-in system.describe procedure.
func Base() *Registry { return base() }

func describeProc(ctx context.Context, _ Params) (any, error) {
	call, ok := CallFromContext(ctx)
	if !ok || call.Service == nil {
		return nil, InternalError("system.describe called outside of a service")
	}
	return call.Service.Describe(), nil
}
