package source

import (
	"fmt"
	"sort"
)

// Registry maps source identities to their configuration. It is built once
// at startup and read-only afterwards.
type Registry struct {
	byID map[string]Config
}

// NewRegistry validates configs and rejects duplicate identities.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{byID: make(map[string]Config, len(configs))}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("source %s: duplicate id", c.ID)
		}
		r.byID[c.ID] = c
	}
	return r, nil
}

// Resolve returns the configuration for id, or an error wrapping ErrUnsupported.
func (r *Registry) Resolve(id string) (Config, error) {
	c, ok := r.byID[id]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupported, id)
	}
	return c, nil
}

// IDs returns the registered identities in lexical order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
