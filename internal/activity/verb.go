package activity

import (
	"fmt"
	"sync"
)

// Verb names the action an activity describes. Wire formats carry only the
// numeric id.
type Verb struct {
	ID         int
	Infinitive string
}

// VerbRegistry is an explicit process-scoped verb lookup table, populated
// once at startup.
type VerbRegistry struct {
	mu   sync.RWMutex
	byID map[int]Verb
}

// NewVerbRegistry returns an empty registry.
func NewVerbRegistry() *VerbRegistry {
	return &VerbRegistry{byID: make(map[int]Verb)}
}

// Register adds a verb. Re-registering an id with a different infinitive
// is an error.
func (r *VerbRegistry) Register(v Verb) error {
	if v.ID == 0 {
		return fmt.Errorf("activity: verb id 0 is reserved")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[v.ID]; ok && existing.Infinitive != v.Infinitive {
		return fmt.Errorf("activity: verb id %d already registered as %q", v.ID, existing.Infinitive)
	}
	r.byID[v.ID] = v
	return nil
}

// Get looks up a verb by id.
func (r *VerbRegistry) Get(verbID int) (Verb, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byID[verbID]
	return v, ok
}

// Built-in verbs for the common social actions.
var (
	VerbFollow  = Verb{ID: 1, Infinitive: "follow"}
	VerbComment = Verb{ID: 2, Infinitive: "comment"}
	VerbLove    = Verb{ID: 3, Infinitive: "love"}
	VerbAdd     = Verb{ID: 4, Infinitive: "add"}
)

// RegisterDefaults loads the built-in verbs into a registry.
func RegisterDefaults(r *VerbRegistry) {
	for _, v := range []Verb{VerbFollow, VerbComment, VerbLove, VerbAdd} {
		_ = r.Register(v)
	}
}
