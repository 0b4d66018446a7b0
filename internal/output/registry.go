// pattern: Imperative Shell

package output

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMaxSurfaces = 16

// Registry holds at most a fixed number of idle or finished surfaces, one
// per validation target, evicting the least recently used. A surface whose
// run is in flight is never dropped: eviction pins it until the run
// finishes, and it then returns to the cache as most recently used.
type Registry struct {
	// mu guards pinned and serializes every cache.Add, so the evict
	// callback runs with mu held.
	mu      sync.Mutex
	cache   *lru.Cache[string, *Surface]
	pinned  map[string]*Surface
	onEvict func(*Surface)

	hookMu   sync.RWMutex
	onChange func(name string)
}

// NewRegistry creates a registry of the given size. onEvict, if set, runs
// after an evicted surface has been closed.
func NewRegistry(size int, onEvict func(*Surface)) (*Registry, error) {
	if size <= 0 {
		size = DefaultMaxSurfaces
	}
	r := &Registry{pinned: make(map[string]*Surface), onEvict: onEvict}
	cache, err := lru.NewWithEvict[string, *Surface](size, r.evicted)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

// evicted runs inside cache.Add, with mu held.
func (r *Registry) evicted(name string, s *Surface) {
	if s.State() == StateInFlight {
		r.pinned[name] = s
		return
	}
	s.Close()
	if r.onEvict != nil {
		r.onEvict(s)
	}
}

// Acquire returns the surface for target, creating it if needed.
func (r *Registry) Acquire(target string) *Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache.Get(target); ok {
		return s
	}
	if s, ok := r.pinned[target]; ok {
		return s
	}
	s := NewSurface(target)
	s.onChange = r.changed
	r.cache.Add(target, s)
	return s
}

// SetOnChange registers a callback that runs after any surface of the
// registry changes. It runs on the writer's goroutine and must not block.
func (r *Registry) SetOnChange(fn func(name string)) {
	r.hookMu.Lock()
	r.onChange = fn
	r.hookMu.Unlock()
}

func (r *Registry) changed(s *Surface) {
	r.settle(s)

	r.hookMu.RLock()
	fn := r.onChange
	r.hookMu.RUnlock()
	if fn != nil {
		fn(s.Name())
	}
}

// settle moves a pinned surface back into the cache once its run is over,
// and takes back a surface that started a run after it had been evicted.
func (r *Registry) settle(s *Surface) {
	name := s.Name()
	inFlight := s.State() == StateInFlight

	r.mu.Lock()
	defer r.mu.Unlock()

	if pinned, ok := r.pinned[name]; ok && pinned == s {
		if !inFlight {
			delete(r.pinned, name)
			r.cache.Add(name, s)
		}
		return
	}
	if !inFlight {
		return
	}
	if _, ok := r.cache.Peek(name); ok {
		// A newer surface owns the name; the detached one finishes unseen.
		return
	}
	s.reopen()
	r.pinned[name] = s
}

// Get returns the surface for target without creating one. It does not
// count as a use for eviction.
func (r *Registry) Get(target string) (*Surface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache.Peek(target); ok {
		return s, true
	}
	s, ok := r.pinned[target]
	return s, ok
}

// Names lists targets, most recently used first. Pinned surfaces come
// first, in no particular order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.pinned)+r.cache.Len())
	for name := range r.pinned {
		names = append(names, name)
	}
	keys := r.cache.Keys() // oldest first
	for i := len(keys) - 1; i >= 0; i-- {
		names = append(names, keys[i])
	}
	return names
}

// Len counts cached and pinned surfaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len() + len(r.pinned)
}
