package gosocks

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// ConnState is the state of a connection, mirrored from the underlying
// transport.
type ConnState int32

const (
	StateUninitialized ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "CLOSED"
	}
}

// StatusCode is a WebSocket close status code.
type StatusCode int

const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusProtocolError   StatusCode = 1002
	StatusNoStatusRcvd    StatusCode = 1005
	StatusAbnormalClosure StatusCode = 1006
	StatusPolicyViolation StatusCode = 1008
)

// Transport provides the interface for exchanging frames with the server.
// Implementations must be safe for concurrent use; Receive is only ever
// called from one goroutine at a time.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	State() ConnState
	// Close performs the closing handshake.
	Close(code StatusCode, reason string) error
	// Terminate drops the connection without a closing handshake.
	Terminate() error
}

// DialFunc opens a Transport to url. The returned Transport is Open.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// DialOptions configures the WebSocket connection.
type DialOptions struct {
	// HTTPHeader specifies additional HTTP headers to send during handshake.
	HTTPHeader http.Header

	// HTTPClient is the HTTP client used for the handshake.
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client

	// ReadLimit caps the size of a single inbound frame. Zero means 1MB.
	ReadLimit int64
}

const defaultReadLimit = 1 << 20

// Dial connects to a gosocks server and returns a Transport.
// A handshake answered with anything but 101 Switching Protocols yields a
// *TransportError wrapping ErrUnexpectedResponse.
func Dial(ctx context.Context, rawURL string, opts *DialOptions) (Transport, error) {
	dialOpts := &websocket.DialOptions{}
	readLimit := int64(defaultReadLimit)
	if opts != nil {
		if opts.HTTPHeader != nil {
			dialOpts.HTTPHeader = opts.HTTPHeader.Clone()
		}
		if opts.HTTPClient != nil {
			dialOpts.HTTPClient = opts.HTTPClient
		}
		if opts.ReadLimit > 0 {
			readLimit = opts.ReadLimit
		}
	}

	conn, resp, err := websocket.Dial(ctx, rawURL, dialOpts)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &TransportError{
				Op:         "handshake",
				URL:        redactURL(rawURL),
				StatusCode: resp.StatusCode,
				Err:        ErrUnexpectedResponse,
			}
		}
		return nil, &TransportError{Op: "dial", URL: redactURL(rawURL), Err: err}
	}

	conn.SetReadLimit(readLimit)

	t := &wsTransport{conn: conn}
	t.state.Store(int32(StateOpen))
	return t, nil
}

// DialerWithOptions returns a DialFunc that dials with opts.
func DialerWithOptions(opts *DialOptions) DialFunc {
	return func(ctx context.Context, rawURL string) (Transport, error) {
		return Dial(ctx, rawURL, opts)
	}
}

// redactURL hides the bearer key so it never ends up in errors or logs.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("bearer") {
		q.Set("bearer", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// wsTransport implements Transport over WebSocket.
type wsTransport struct {
	conn  *websocket.Conn
	mu    sync.Mutex
	state atomic.Int32
}

// Send writes one text frame.
func (t *wsTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State() != StateOpen {
		return ErrClosed
	}

	if err := t.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Receive reads the next frame.
func (t *wsTransport) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err == nil {
		return data, nil
	}

	prev := ConnState(t.state.Swap(int32(StateClosed)))

	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return nil, &CloseError{Code: StatusCode(ce.Code), Reason: ce.Reason}
	}
	if prev == StateClosing || prev == StateClosed {
		return nil, ErrClosed
	}
	return nil, &TransportError{Op: "read", Err: err}
}

func (t *wsTransport) State() ConnState {
	return ConnState(t.state.Load())
}

// Close closes the transport with a closing handshake.
func (t *wsTransport) Close(code StatusCode, reason string) error {
	if !t.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return nil
	}
	err := t.conn.Close(websocket.StatusCode(code), reason)
	t.state.Store(int32(StateClosed))
	if err != nil && websocket.CloseStatus(err) == -1 {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

// Terminate closes the underlying connection immediately.
func (t *wsTransport) Terminate() error {
	t.state.Store(int32(StateClosed))
	return t.conn.CloseNow()
}
