package gosocks

import (
	"fmt"
	"log/slog"
	"net/url"
)

// DefaultHost is the hosted gosocks endpoint.
const DefaultHost = "gosocks.io"

// --- Session Options ---

// Option configures a Session.
type Option func(*sessionConfig)

type sessionConfig struct {
	logger  *slog.Logger
	host    string
	useTLS  bool
	baseURL string
	dial    DialFunc

	onOpen    func()
	onClose   func(code StatusCode, reason string)
	onError   func(error)
	onMessage func(*Envelope)
	onSend    func([]byte)
	onReceive func([]byte)

	reconnect *BackoffConfig
	autoJoin  bool
}

// WithLogger sets a structured logger for the session.
func WithLogger(logger *slog.Logger) Option {
	return func(c *sessionConfig) {
		c.logger = logger
	}
}

// WithHost sets the server host. Defaults to DefaultHost.
func WithHost(host string) Option {
	return func(c *sessionConfig) {
		c.host = host
	}
}

// WithTLS selects wss:// instead of ws://.
func WithTLS(useTLS bool) Option {
	return func(c *sessionConfig) {
		c.useTLS = useTLS
	}
}

// WithURL sets the full endpoint URL, overriding WithHost and WithTLS.
// The bearer query parameter is still added by Init.
func WithURL(u string) Option {
	return func(c *sessionConfig) {
		c.baseURL = u
	}
}

// WithDialer replaces the default WebSocket dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *sessionConfig) {
		c.dial = dial
	}
}

// WithOnOpen sets a callback invoked once a transport is open.
func WithOnOpen(fn func()) Option {
	return func(c *sessionConfig) {
		c.onOpen = fn
	}
}

// WithOnClose sets a callback invoked when the server or network closes the
// transport. It is not invoked for Disconnect.
func WithOnClose(fn func(code StatusCode, reason string)) Option {
	return func(c *sessionConfig) {
		c.onClose = fn
	}
}

// WithOnError sets a callback invoked for transport failures.
func WithOnError(fn func(error)) Option {
	return func(c *sessionConfig) {
		c.onError = fn
	}
}

// WithOnMessage sets a callback invoked for every decoded envelope, whether
// or not a channel is subscribed for it.
func WithOnMessage(fn func(*Envelope)) Option {
	return func(c *sessionConfig) {
		c.onMessage = fn
	}
}

// WithOnSend sets a callback invoked before each frame is sent.
func WithOnSend(fn func([]byte)) Option {
	return func(c *sessionConfig) {
		c.onSend = fn
	}
}

// WithOnReceive sets a callback invoked after each frame is received.
func WithOnReceive(fn func([]byte)) Option {
	return func(c *sessionConfig) {
		c.onReceive = fn
	}
}

// WithReconnect redials after an unexpected close and rejoins every
// subscribed channel.
func WithReconnect(cfg BackoffConfig) Option {
	return func(c *sessionConfig) {
		c.reconnect = &cfg
	}
}

// WithAutoJoin makes Init join every subscribed channel once open.
func WithAutoJoin() Option {
	return func(c *sessionConfig) {
		c.autoJoin = true
	}
}

// endpoint builds the URL to dial for authKey.
func (c *sessionConfig) endpoint(authKey string) (string, error) {
	base := c.baseURL
	if base == "" {
		scheme := "ws"
		if c.useTLS {
			scheme = "wss"
		}
		base = scheme + "://" + c.host + "/ws"
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("gosocks: invalid endpoint %q: %w", base, err)
	}
	q := u.Query()
	q.Set("bearer", authKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// --- Send Options ---

// SendOption configures a published message.
type SendOption func(*sendConfig)

type sendConfig struct {
	event string
}

// WithEvent sets the event name. Defaults to "send_message".
func WithEvent(name string) SendOption {
	return func(c *sendConfig) {
		c.event = name
	}
}
