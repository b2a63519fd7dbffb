package realtime

import (
	"sync"
	"time"

	"github.com/locolive/pulse/internal/domain"
)

type registration struct {
	handle     domain.Channel
	generation uint64
}

// Registry maps each user to at most one live channel. It is process-local:
// after a restart every user is offline until they reconnect.
//
// Each registration gets a generation number. Deregister only removes the
// entry when the generation still matches, so a late disconnect from a
// superseded connection cannot evict the connection that replaced it.
type Registry struct {
	mu      sync.RWMutex
	live    map[string]registration
	nextGen uint64

	// lastSeen is map[string]time.Time and outlives live entries.
	lastSeen sync.Map

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		live: make(map[string]registration),
		now:  time.Now,
	}
}

// Register makes handle the live channel for userID, replacing any previous
// one, and returns the generation to pass to Deregister.
func (r *Registry) Register(userID string, handle domain.Channel) uint64 {
	r.mu.Lock()
	r.nextGen++
	gen := r.nextGen
	r.live[userID] = registration{handle: handle, generation: gen}
	r.mu.Unlock()

	r.TouchLastSeen(userID)
	return gen
}

// Deregister removes userID's live channel if it is still the one registered
// under generation. It reports whether an entry was removed.
func (r *Registry) Deregister(userID string, generation uint64) bool {
	r.mu.Lock()
	reg, ok := r.live[userID]
	removed := ok && reg.generation == generation
	if removed {
		delete(r.live, userID)
	}
	r.mu.Unlock()

	r.TouchLastSeen(userID)
	return removed
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.live[userID]
	return ok
}

// Lookup returns the live channel for userID.
func (r *Registry) Lookup(userID string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.live[userID]
	if !ok {
		return nil, false
	}
	return reg.handle, true
}

func (r *Registry) TouchLastSeen(userID string) {
	r.lastSeen.Store(userID, r.now().UTC())
}

// LastSeen returns the last register/deregister time for userID.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	v, ok := r.lastSeen.Load(userID)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
