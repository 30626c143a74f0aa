package gosocks

import "log/slog"

// route applies one inbound envelope to its channel.
type route func(ch *Channel, env *Envelope)

// routes is the complete routing table. Every Action has an entry; an
// action missing from the table is dropped without side effects.
var routes = map[Action]route{
	ActionSendMessage:        routeEvent,
	ActionMemberAdded:        routeMemberAdded,
	ActionMemberRemoved:      routeMemberRemoved,
	ActionJoinChannelPrivate: routeJoined,
	ActionChannelJoined:      routeJoined,
	// Outbound-only intents; ignored if the server echoes them.
	ActionJoinChannel:  routeIgnore,
	ActionLeaveChannel: routeIgnore,
}

func routeEvent(ch *Channel, env *Envelope) {
	ch.handlers.onEvent.invoke(env)
}

func routeMemberAdded(ch *Channel, env *Envelope) {
	if id := env.SenderID(); id != "" {
		ch.addMember(Member{ID: id})
	}
	ch.handlers.onMemberAdded.invoke(env)
}

func routeMemberRemoved(ch *Channel, env *Envelope) {
	if id := env.SenderID(); id != "" {
		ch.removeMember(id)
	}
	ch.handlers.onMemberRemoved.invoke(env)
}

func routeJoined(ch *Channel, env *Envelope) {
	ch.handlers.onJoined.invoke(env)
}

func routeIgnore(*Channel, *Envelope) {}

// dispatcher routes decoded envelopes to the channels of a registry.
type dispatcher struct {
	reg    *registry
	logger *slog.Logger
}

// dispatch delivers env to its channel and reports whether a route ran.
// Envelopes for unsubscribed channels or unknown actions are dropped.
func (d *dispatcher) dispatch(env *Envelope) bool {
	ch, ok := d.reg.get(env.Channel)
	if !ok {
		if d.logger != nil {
			d.logger.Debug("dropping envelope",
				slog.String("channel", env.Channel),
				slog.String("action", string(env.Action)),
				slog.Any("error", ErrUnknownChannel),
			)
		}
		return false
	}

	r, ok := routes[env.Action]
	if !ok {
		if d.logger != nil {
			d.logger.Debug("dropping envelope with unknown action",
				slog.String("channel", env.Channel),
				slog.String("action", string(env.Action)),
			)
		}
		return false
	}

	r(ch, env)
	return true
}
