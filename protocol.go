package gosocks

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action identifies what an envelope asks for or reports.
type Action string

const (
	ActionSendMessage        Action = "send_message"
	ActionJoinChannel        Action = "join_channel"
	ActionJoinChannelPrivate Action = "join_channel_private"
	ActionLeaveChannel       Action = "leave_channel"
	ActionMemberAdded        Action = "member_added"
	ActionMemberRemoved      Action = "member_removed"
	ActionChannelJoined      Action = "channel_joined"
)

// Actions lists every action the protocol defines.
var Actions = []Action{
	ActionSendMessage,
	ActionJoinChannel,
	ActionJoinChannelPrivate,
	ActionLeaveChannel,
	ActionMemberAdded,
	ActionMemberRemoved,
	ActionChannelJoined,
}

// PrivatePrefix marks a channel name as private.
const PrivatePrefix = "private-"

// Member is a remote participant of a private channel.
type Member struct {
	ID string `json:"id"`
}

// --- Envelopes (Server -> Client) ---

// Envelope is one decoded message from the server.
type Envelope struct {
	Action  Action
	Channel string
	Event   string

	// Data is the JSON-encoded payload, or "" for control messages.
	Data string

	Sender    *Member
	Timestamp *float64
}

// Unmarshal decodes Data into v.
func (e *Envelope) Unmarshal(v any) error {
	if e.Data == "" {
		return fmt.Errorf("gosocks: envelope %s/%s has no data", e.Channel, e.Event)
	}
	return json.Unmarshal([]byte(e.Data), v)
}

// SenderID returns the sender's id, or "" when the envelope has no sender.
func (e *Envelope) SenderID() string {
	if e.Sender == nil {
		return ""
	}
	return e.Sender.ID
}

// IsMessage returns true if this is a send_message envelope.
func (e *Envelope) IsMessage() bool {
	return e.Action == ActionSendMessage
}

// IsMembership returns true if this envelope adds or removes a member.
func (e *Envelope) IsMembership() bool {
	return e.Action == ActionMemberAdded || e.Action == ActionMemberRemoved
}

type wireTarget struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type wireEnvelope struct {
	Action    Action          `json:"action"`
	Name      string          `json:"name,omitempty"`
	Target    *wireTarget     `json:"target,omitempty"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Sender    *Member         `json:"sender,omitempty"`
	Timestamp *float64        `json:"timestamp,omitempty"`
}

// Decode parses a single envelope payload.
// Both "name" and "target.name" are accepted for the channel, "name" wins.
// A string data field is unwrapped; any other JSON value is kept verbatim.
func Decode(payload []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, &DecodeError{Payload: string(payload), Err: err}
	}
	if w.Action == "" {
		return nil, &DecodeError{Payload: string(payload), Err: fmt.Errorf("%w: action", ErrMissingField)}
	}
	if w.Event == "" {
		return nil, &DecodeError{Payload: string(payload), Err: fmt.Errorf("%w: event", ErrMissingField)}
	}

	env := &Envelope{
		Action:    w.Action,
		Channel:   w.Name,
		Event:     w.Event,
		Sender:    w.Sender,
		Timestamp: w.Timestamp,
	}
	if env.Channel == "" && w.Target != nil {
		env.Channel = w.Target.Name
	}

	data, err := decodeData(w.Data)
	if err != nil {
		return nil, &DecodeError{Payload: string(payload), Err: err}
	}
	env.Data = data

	return env, nil
}

func decodeData(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] != '"' {
		return string(raw), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

// --- Intents (Client -> Server) ---

// Intent is an outbound envelope before encoding.
type Intent struct {
	Action  Action
	Channel string
	// Event defaults to the action when empty.
	Event string
	// Data is sent as a string: strings and json.RawMessage pass through,
	// nil becomes "", anything else is JSON-encoded first.
	Data any
}

type outboundEnvelope struct {
	Action Action `json:"action"`
	Name   string `json:"name"`
	Event  string `json:"event"`
	Data   string `json:"data"`
}

// Encode serializes an intent for the wire.
func Encode(in Intent) ([]byte, error) {
	data, err := encodeData(in.Data)
	if err != nil {
		return nil, err
	}

	event := in.Event
	if event == "" {
		event = string(in.Action)
	}

	return json.Marshal(outboundEnvelope{
		Action: in.Action,
		Name:   in.Channel,
		Event:  event,
		Data:   data,
	})
}

func encodeData(v any) (string, error) {
	switch d := v.(type) {
	case nil:
		return "", nil
	case string:
		return d, nil
	case json.RawMessage:
		return string(d), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("gosocks: encode data: %w", err)
	}
	return string(b), nil
}

// NewJoinIntent returns the join intent for a channel, private or public.
func NewJoinIntent(ch *Channel) Intent {
	action := ActionJoinChannel
	if ch.IsPrivate() {
		action = ActionJoinChannelPrivate
	}
	return Intent{Action: action, Channel: ch.Name()}
}

// NewLeaveIntent returns the leave intent for a channel.
func NewLeaveIntent(name string) Intent {
	return Intent{Action: ActionLeaveChannel, Channel: name}
}

// NewMessageIntent returns a send_message intent. An empty event defaults
// to "send_message".
func NewMessageIntent(channel, event string, data any) Intent {
	return Intent{Action: ActionSendMessage, Channel: channel, Event: event, Data: data}
}
