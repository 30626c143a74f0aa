package gosocks

import "sync"

// registry maps channel names to subscriptions. Iteration follows
// subscription order.
type registry struct {
	mu       sync.RWMutex // protects the entire registry
	channels map[string]*Channel
	order    []string
}

func newRegistry() *registry {
	return &registry{
		channels: make(map[string]*Channel),
	}
}

// getOrCreate returns the channel registered under name, calling create
// to build it if there is none. The bool reports whether it was created.
func (r *registry) getOrCreate(name string, create func() *Channel) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[name]; ok {
		return ch, false
	}
	ch := create()
	r.channels[name] = ch
	r.order = append(r.order, name)
	return ch, true
}

func (r *registry) get(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// remove deletes ch only if it is still the channel registered under its
// name, so a stale leave cannot drop a newer subscription.
func (r *registry) remove(ch *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.channels[ch.name]; !ok || cur != ch {
		return false
	}
	delete(r.channels, ch.name)
	for i, name := range r.order {
		if name == ch.name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// snapshot returns the registered channels in subscription order.
func (r *registry) snapshot() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]*Channel, 0, len(r.order))
	for _, name := range r.order {
		channels = append(channels, r.channels[name])
	}
	return channels
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
