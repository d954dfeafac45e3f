// Package validation executes validate-kind jobs: it resolves the dataset a
// prior job produced, applies a registered validation routine per record or
// per dataset, aggregates the findings and persists per-record history.
package validation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/ordino/internal/interfaces"
)

// Registry is a compiled-in routine loader: validation routines are
// registered by name at startup and resolved by reference at run time.
type Registry struct {
	mu       sync.RWMutex
	routines map[string]*interfaces.ValidationRoutine
}

// NewRegistry creates an empty routine registry
func NewRegistry() *Registry {
	return &Registry{
		routines: make(map[string]*interfaces.ValidationRoutine),
	}
}

// Register adds a routine under a reference name. A routine must provide at
// least one of the two capability functions.
func (r *Registry) Register(ref string, routine *interfaces.ValidationRoutine) error {
	if ref == "" {
		return fmt.Errorf("routine reference is required")
	}
	if routine == nil || (routine.PerRecord == nil && routine.PerDataset == nil) {
		return fmt.Errorf("routine %s must provide a per-record or per-dataset function", ref)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routines[ref]; exists {
		return fmt.Errorf("routine %s is already registered", ref)
	}
	r.routines[ref] = routine
	return nil
}

// Load resolves a routine reference. An unknown reference is a configuration
// error; callers surface it before any job dispatch.
func (r *Registry) Load(ref string) (*interfaces.ValidationRoutine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routine, exists := r.routines[ref]
	if !exists {
		return nil, fmt.Errorf("validation routine not registered: %s", ref)
	}
	return routine, nil
}

// List returns the registered routine references sorted by name
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.routines))
	for ref := range r.routines {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
