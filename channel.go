package gosocks

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// EventHandler receives envelopes routed to a channel. A nil EventHandler
// is valid and ignores everything.
type EventHandler func(*Envelope)

func (h EventHandler) invoke(env *Envelope) {
	if h != nil {
		h(env)
	}
}

type channelHandlers struct {
	onEvent         EventHandler
	onMemberAdded   EventHandler
	onMemberRemoved EventHandler
	onJoined        EventHandler
}

// SubscribeOption configures the handlers of a new channel subscription.
type SubscribeOption func(*channelHandlers)

// OnEvent handles send_message envelopes.
func OnEvent(fn EventHandler) SubscribeOption {
	return func(h *channelHandlers) {
		h.onEvent = fn
	}
}

// OnMemberAdded handles member_added envelopes.
func OnMemberAdded(fn EventHandler) SubscribeOption {
	return func(h *channelHandlers) {
		h.onMemberAdded = fn
	}
}

// OnMemberRemoved handles member_removed envelopes.
func OnMemberRemoved(fn EventHandler) SubscribeOption {
	return func(h *channelHandlers) {
		h.onMemberRemoved = fn
	}
}

// OnJoined handles the server's confirmation that the channel was joined.
func OnJoined(fn EventHandler) SubscribeOption {
	return func(h *channelHandlers) {
		h.onJoined = fn
	}
}

// Channel is a subscription to a named topic.
// It is safe for concurrent use by multiple goroutines.
type Channel struct {
	name     string
	private  bool
	session  *Session
	handlers channelHandlers

	mu      sync.RWMutex
	members map[string]Member
}

func newChannel(name string, session *Session, opts ...SubscribeOption) *Channel {
	ch := &Channel{
		name:    name,
		private: strings.HasPrefix(name, PrivatePrefix),
		session: session,
		members: make(map[string]Member),
	}
	for _, opt := range opts {
		opt(&ch.handlers)
	}
	return ch
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// IsPrivate reports whether the channel name carries the private prefix.
func (c *Channel) IsPrivate() bool {
	return c.private
}

// Members returns the known members, ordered by id.
func (c *Channel) Members() []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()

	members := make([]Member, 0, len(c.members))
	for _, m := range c.members {
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b Member) int {
		return strings.Compare(a.ID, b.ID)
	})
	return members
}

// HasMember reports whether id is a known member.
func (c *Channel) HasMember(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

// Unsubscribe leaves the channel. See Session.Unsubscribe.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	if c.session == nil {
		return ErrNotConnected
	}
	return c.session.Unsubscribe(ctx, c.name)
}

// Send publishes data on the channel. See Session.SendToChannel.
func (c *Channel) Send(ctx context.Context, data any, opts ...SendOption) error {
	if c.session == nil {
		return ErrNotConnected
	}
	return c.session.SendToChannel(ctx, c.name, data, opts...)
}

func (c *Channel) addMember(m Member) {
	c.mu.Lock()
	c.members[m.ID] = m
	c.mu.Unlock()
}

func (c *Channel) removeMember(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[id]; !ok {
		return false
	}
	delete(c.members, id)
	return true
}
