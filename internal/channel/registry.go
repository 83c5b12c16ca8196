package channel

import "sync"

// Summary is a point-in-time snapshot of one channel's occupancy, returned
// by LIST and by the admin REST API.
type Summary struct {
	Name     string
	Port     int
	Members  int
	Capacity int
	Waiting  int
}

// Directory resolves channel names to ports for SWITCH, checks a
// destination channel for a name collision during SWITCH, and produces
// summaries for LIST. A Registry is the concrete implementation; tests use
// smaller fakes.
type Directory interface {
	List() []Summary
	Lookup(name string) (port int, ok bool)
	HasMember(channelName, username string) bool
}

// Registry tracks every channel running in this server process and
// satisfies Directory for both the protocol-level LIST/SWITCH operations
// and the admin HTTP API.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Register adds ch to the registry. It is a programmer error to register
// two channels with the same name; Register panics in that case since it
// only ever runs once at startup from validated configuration.
func (r *Registry) Register(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[ch.Name]; exists {
		panic("channel: duplicate channel name registered: " + ch.Name)
	}
	r.channels[ch.Name] = ch
}

// Get returns the named channel, or nil if no such channel exists.
func (r *Registry) Get(name string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[name]
}

// All returns every registered channel in no particular order.
func (r *Registry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// List implements Directory.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch.Summary())
	}
	return out
}

// Lookup implements Directory.
func (r *Registry) Lookup(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	if !ok {
		return 0, false
	}
	return ch.Port, true
}

// HasMember implements Directory.
func (r *Registry) HasMember(channelName, username string) bool {
	r.mu.RLock()
	ch, ok := r.channels[channelName]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return ch.hasName(username)
}
