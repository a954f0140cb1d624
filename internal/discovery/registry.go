package discovery

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/leqctl/internal/protocol"
)

// Entry is one accepted service registration.
type Entry struct {
	ID           int
	Registration protocol.Registration
	Source       netip.AddrPort
	FirstSeen    time.Time
}

// Registry de-duplicates registrations by address, protocol and port. The
// first announcement wins; repeats do not update the stored parameters.
type Registry struct {
	mu      sync.RWMutex
	nextID  int
	entries map[protocol.Key]Entry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[protocol.Key]Entry),
		now:     time.Now,
	}
}

// Add records reg and reports whether it was new.
func (r *Registry) Add(reg protocol.Registration, source netip.AddrPort) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reg.Key()
	if existing, ok := r.entries[key]; ok {
		return existing, false
	}
	entry := Entry{
		ID:           r.nextID,
		Registration: reg,
		Source:       source,
		FirstSeen:    r.now(),
	}
	r.nextID++
	r.entries[key] = entry
	return entry, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a snapshot ordered by id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
