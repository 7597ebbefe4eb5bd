package assignment

import (
	"sort"
	"sync"

	"github.com/gatekit/gatekit/internal/entity"
)

// Registry records which subject types may hold which entity kinds. The
// host application declares its types once at startup; the store refuses
// links for undeclared combinations.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]map[entity.Kind]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]map[entity.Kind]struct{})}
}

// Declare marks the subject type as supporting the given kinds. Repeated
// calls accumulate.
func (r *Registry) Declare(subjectType string, kinds ...entity.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.kinds[subjectType]
	if !ok {
		set = make(map[entity.Kind]struct{})
		r.kinds[subjectType] = set
	}
	for _, k := range kinds {
		set[k] = struct{}{}
	}
}

// Interacts reports whether the subject type declared support for the kind.
func (r *Registry) Interacts(subjectType string, kind entity.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[subjectType][kind]
	return ok
}

// Kinds returns the kinds a subject type declared, in stable order.
func (r *Registry) Kinds(subjectType string) []entity.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.kinds[subjectType]
	kinds := make([]entity.Kind, 0, len(set))
	for k := range set {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
