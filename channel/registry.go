package channel

import (
	"github.com/pkg/errors"
)

// A Registry is the read-only table of configured channels. It is built once
// at startup and never mutated afterwards.
type Registry struct {
	order  []string
	byName map[string]Descriptor
}

// NewRegistry validates the given descriptors and indexes them by name.
// Overlapping pins, duplicate names and kind/pin mismatches are configuration
// errors that should stop the process.
func NewRegistry(descs []Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	byPin := make(map[string]string, len(descs))
	for _, d := range descs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, ok := r.byName[d.Name]; ok {
			return nil, errors.Errorf("duplicate channel name %q", d.Name)
		}
		if prev, ok := byPin[d.Pin]; ok {
			return nil, errors.Errorf("channels %q and %q both claim pin %s", prev, d.Name, d.Pin)
		}
		byPin[d.Pin] = d.Name
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	if len(r.order) == 0 {
		return nil, errors.New("no channels configured")
	}
	return r, nil
}

// Describe returns the descriptor for the named channel.
func (r *Registry) Describe(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns every descriptor in configuration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of configured channels.
func (r *Registry) Len() int {
	return len(r.order)
}
