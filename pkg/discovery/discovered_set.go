package discovery

import "sort"

// DiscoveredSet holds the services currently present for one browse.
// It is not safe for concurrent use; the owning session guards it.
type DiscoveredSet struct {
	services map[Identity]Descriptor
}

// NewDiscoveredSet creates an empty set.
func NewDiscoveredSet() *DiscoveredSet {
	return &DiscoveredSet{services: make(map[Identity]Descriptor)}
}

// Add stores d unless a service with the same identity is present.
// It reports whether d was added.
func (s *DiscoveredSet) Add(d Descriptor) bool {
	id := d.Identity()
	if _, exists := s.services[id]; exists {
		return false
	}
	s.services[id] = d.Normalized()
	return true
}

// Remove deletes the service with the identity of d and returns the stored
// descriptor. ok is false if no such service was present.
func (s *DiscoveredSet) Remove(d Descriptor) (stored Descriptor, ok bool) {
	id := d.Identity()
	stored, ok = s.services[id]
	if ok {
		delete(s.services, id)
	}
	return stored, ok
}

// Len returns the number of present services.
func (s *DiscoveredSet) Len() int {
	return len(s.services)
}

// Services returns a snapshot of the present services ordered by name.
func (s *DiscoveredSet) Services() []Descriptor {
	out := make([]Descriptor, 0, len(s.services))
	for _, d := range s.services {
		out = append(out, d.Normalized())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out
}
