package permission

import (
	"errors"
	"sort"
	"sync"
)

// Vocabulary is the closed set of resources an installation protects.
// Register everything during wiring, then Freeze before the first check.
type Vocabulary struct {
	mu        sync.RWMutex
	resources map[Resource]struct{}
	frozen    bool
}

// NewVocabulary creates an empty, unfrozen Vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{resources: make(map[Resource]struct{})}
}

// Register adds a resource. Must be called before [Vocabulary.Freeze].
func (v *Vocabulary) Register(resource Resource) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.frozen {
		return errors.New("vocabulary frozen")
	}
	if resource == "" {
		return errors.New("resource name cannot be empty")
	}
	if _, exists := v.resources[resource]; exists {
		return errors.New("resource already registered")
	}

	v.resources[resource] = struct{}{}
	return nil
}

// Contains reports whether the resource is part of the vocabulary.
func (v *Vocabulary) Contains(resource Resource) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.resources[resource]
	return ok
}

// Freeze prevents further registrations. Must be called before the
// vocabulary is used for validation.
func (v *Vocabulary) Freeze() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frozen = true
}

// Count returns the number of registered resources.
func (v *Vocabulary) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.resources)
}

// Resources returns the registered resources in sorted order.
func (v *Vocabulary) Resources() []Resource {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Resource, 0, len(v.resources))
	for r := range v.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
