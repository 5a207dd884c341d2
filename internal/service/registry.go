package service

import "sync"

// Registry is the process-wide table of live sessions. It is the single
// source of truth for "is this bot live" and for the permanent retirement
// flag consulted before outbound pushes. All access is atomic; nothing else
// touches the underlying maps.
type Registry struct {
	mu      sync.Mutex
	live    map[int64]*Runtime
	retired map[int64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		live:    make(map[int64]*Runtime),
		retired: make(map[int64]struct{}),
	}
}

// Put registers a runtime under botID if none is present. It returns false
// when a session is already live, enforcing at most one session per id.
func (r *Registry) Put(botID int64, rt *Runtime) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.live[botID]; exists {
		return false
	}
	r.live[botID] = rt
	return true
}

func (r *Registry) Get(botID int64) (*Runtime, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.live[botID]
	return rt, ok
}

// Remove deletes the registration only if it still belongs to rt, so a
// stale supervisor finishing late cannot evict a fresh session.
func (r *Registry) Remove(botID int64, rt *Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.live[botID]; ok && current == rt {
		delete(r.live, botID)
	}
}

// Retire marks the id permanently retired. Late-arriving events for a
// retired id must not resurrect any state; every outbound push checks this
// flag first. The live runtime, if any, is left for its supervisor to tear
// down.
func (r *Registry) Retire(botID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retired[botID] = struct{}{}
}

// Revive clears the retirement flag. Called on an explicit start request so
// a bot id recreated upstream can run again.
func (r *Registry) Revive(botID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.retired, botID)
}

func (r *Registry) IsRetired(botID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.retired[botID]
	return ok
}

func (r *Registry) IsLive(botID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[botID]
	return ok
}
