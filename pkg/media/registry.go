package media

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an empty record of one kind.
type Constructor func() Record

// Registry maps record type names to constructors. It is closed: only kinds
// registered explicitly can be rebuilt from an identifier.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Constructor
}

// NewRegistry creates an empty kind registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]Constructor),
	}
}

// Builtin returns a registry holding the five standard record kinds.
func Builtin() *Registry {
	r := NewRegistry()
	r.mustRegister(TypeMedia, func() Record { return NewMedia() })
	r.mustRegister(TypeAudio, func() Record { return NewAudio() })
	r.mustRegister(TypeVideo, func() Record { return NewVideo() })
	r.mustRegister(TypeImage, func() Record { return NewImage() })
	r.mustRegister(TypeBox, func() Record { return NewBox() })
	return r
}

// Register adds a constructor for name. Registering a name twice fails.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" {
		return fmt.Errorf("record kind name cannot be empty")
	}
	if ctor == nil {
		return fmt.Errorf("record kind %s: nil constructor", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[name]; exists {
		return fmt.Errorf("record kind already registered: %s", name)
	}
	r.kinds[name] = ctor
	return nil
}

// New builds an empty record of the named kind.
func (r *Registry) New(name string) (Record, bool) {
	r.mu.RLock()
	ctor, ok := r.kinds[name]
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Names returns the registered kind names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) mustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}
