package gosocks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session multiplexes channel subscriptions over a single connection.
// It is safe for concurrent use by multiple goroutines.
//
// A process normally holds exactly one Session and passes it to whatever
// needs it.
type Session struct {
	id     string
	cfg    sessionConfig
	logger *slog.Logger
	reg    *registry
	disp   *dispatcher

	initMu sync.Mutex // serialises dials

	mu              sync.RWMutex
	authKey         string
	transport       Transport
	loop            *listener
	state           ConnState // used while there is no transport
	gen             uint64    // bumped by Disconnect
	cancelReconnect context.CancelFunc
}

// listener ties the read loop of one transport to the session's handlers.
// Once released, the loop stops delivering frames and lifecycle events.
type listener struct {
	released atomic.Bool
}

func (l *listener) release() bool {
	return l.released.CompareAndSwap(false, true)
}

func (l *listener) active() bool {
	return !l.released.Load()
}

// New creates a Session. Nothing is dialed until Init.
func New(opts ...Option) *Session {
	cfg := sessionConfig{
		host: DefaultHost,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dial == nil {
		cfg.dial = DialerWithOptions(nil)
	}

	id := uuid.New().String()
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("session", id))

	reg := newRegistry()
	return &Session{
		id:     id,
		cfg:    cfg,
		logger: logger,
		reg:    reg,
		disp:   &dispatcher{reg: reg, logger: logger},
		state:  StateUninitialized,
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// State returns the connection state.
func (s *Session) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transport != nil {
		return s.transport.State()
	}
	return s.state
}

// Init opens the connection using authKey.
//
// Init is idempotent: while a transport exists and is not closed, it is
// reused and nothing is dialed. A handshake rejected by the server is
// abandoned without a closing handshake, reported to the OnError callback,
// and leaves the session Closed.
func (s *Session) Init(ctx context.Context, authKey string) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	if s.transport != nil && s.transport.State() != StateClosed {
		s.mu.Unlock()
		s.logger.Debug("reusing transport")
		return nil
	}
	s.authKey = authKey
	s.transport = nil
	s.state = StateConnecting
	gen := s.gen
	s.mu.Unlock()

	if err := s.open(ctx, gen); err != nil {
		return err
	}

	if s.cfg.autoJoin {
		return s.Connect(ctx)
	}
	return nil
}

// open dials and attaches a new transport unless Disconnect was called
// since gen was read. The caller holds initMu.
func (s *Session) open(ctx context.Context, gen uint64) error {
	s.mu.RLock()
	authKey := s.authKey
	s.mu.RUnlock()

	endpoint, err := s.cfg.endpoint(authKey)
	if err != nil {
		s.setState(StateClosed)
		return err
	}

	t, err := s.cfg.dial(ctx, endpoint)
	if err != nil {
		s.setState(StateClosed)
		s.logger.Error("connect failed", slog.Any("error", err))
		if s.cfg.onError != nil {
			s.cfg.onError(err)
		}
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// Disconnected while dialing.
		s.mu.Unlock()
		_ = t.Terminate()
		return ErrClosed
	}
	l := &listener{}
	s.transport = t
	s.loop = l
	s.mu.Unlock()

	s.logger.Info("connected")
	if s.cfg.onOpen != nil {
		s.cfg.onOpen()
	}

	go s.readLoop(t, l)
	return nil
}

// Subscribe registers interest in a channel and returns it.
//
// If the channel is already subscribed, the existing Channel is returned and
// opts are ignored. Subscribing sends nothing; Connect joins subscribed
// channels on the server.
func (s *Session) Subscribe(name string, opts ...SubscribeOption) *Channel {
	ch, created := s.reg.getOrCreate(name, func() *Channel {
		return newChannel(name, s, opts...)
	})
	if created {
		s.logger.Debug("subscribed",
			slog.String("channel", name),
			slog.Bool("private", ch.IsPrivate()),
		)
	}
	return ch
}

// Unsubscribe leaves a channel and forgets it.
//
// When connected, a leave_channel envelope is sent first and the channel is
// only removed once that send succeeded; on failure the channel stays
// subscribed and the error is returned. Without an open connection the
// channel is removed locally.
func (s *Session) Unsubscribe(ctx context.Context, name string) error {
	ch, ok := s.reg.get(name)
	if !ok {
		return &NotSubscribedError{Op: "unsubscribe", Channel: name}
	}

	if t := s.liveTransport(); t != nil {
		if err := s.send(ctx, t, NewLeaveIntent(name)); err != nil {
			s.logger.Warn("leave failed",
				slog.String("channel", name),
				slog.Any("error", err),
			)
			return err
		}
	}

	s.reg.remove(ch)
	s.logger.Debug("unsubscribed", slog.String("channel", name))
	return nil
}

// Connect joins every subscribed channel on the server, in subscription
// order. It is the only way membership is (re)established, so call it after
// every Init. Failures for individual channels are joined into the returned
// error and do not stop the others.
func (s *Session) Connect(ctx context.Context) error {
	t := s.liveTransport()
	if t == nil {
		return ErrNotConnected
	}

	var errs []error
	for _, ch := range s.reg.snapshot() {
		if err := s.send(ctx, t, NewJoinIntent(ch)); err != nil {
			s.logger.Warn("join failed",
				slog.String("channel", ch.Name()),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("join %s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Disconnect closes the connection. With graceful set the closing handshake
// is performed, otherwise the connection is dropped at once.
//
// Handlers are detached before the transport is closed: once Disconnect
// returns, no further channel handler or lifecycle callback is started for
// this connection. Disconnect may be called from a handler. Subscriptions
// are kept for the next Init and Connect.
func (s *Session) Disconnect(graceful bool) error {
	s.mu.Lock()
	t, l, cancel := s.transport, s.loop, s.cancelReconnect
	s.transport, s.loop, s.cancelReconnect = nil, nil, nil
	s.gen++
	if t != nil || s.state != StateUninitialized {
		s.state = StateClosed
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if l != nil {
		l.release()
	}
	if t == nil {
		return nil
	}

	s.logger.Info("disconnecting", slog.Bool("graceful", graceful))
	if graceful {
		return t.Close(StatusNormalClosure, "")
	}
	return t.Terminate()
}

// SendToChannel publishes data on a private channel.
//
// Publishing to a public channel fails with *PolicyError before anything is
// sent. The channel must be subscribed.
func (s *Session) SendToChannel(ctx context.Context, name string, data any, opts ...SendOption) error {
	if !strings.HasPrefix(name, PrivatePrefix) {
		return &PolicyError{Channel: name}
	}
	if _, ok := s.reg.get(name); !ok {
		return &NotSubscribedError{Op: "send", Channel: name}
	}

	t := s.liveTransport()
	if t == nil {
		return ErrNotConnected
	}

	cfg := sendConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return s.send(ctx, t, NewMessageIntent(name, cfg.event, data))
}

// SendToAllChannels publishes data on every subscribed private channel.
// Each send is independent; failures are joined into the returned error.
// Public channels are skipped.
func (s *Session) SendToAllChannels(ctx context.Context, data any, opts ...SendOption) error {
	var errs []error
	for _, ch := range s.reg.snapshot() {
		if !ch.IsPrivate() {
			continue
		}
		if err := s.SendToChannel(ctx, ch.Name(), data, opts...); err != nil {
			errs = append(errs, fmt.Errorf("send %s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Channel returns the subscribed channel called name.
func (s *Session) Channel(name string) (*Channel, bool) {
	return s.reg.get(name)
}

// Channels returns every subscribed channel in subscription order.
func (s *Session) Channels() []*Channel {
	return s.reg.snapshot()
}

// readLoop reads frames from the transport and dispatches them in order.
func (s *Session) readLoop(t Transport, l *listener) {
	for {
		frame, err := t.Receive(context.Background())
		if err != nil {
			s.handleLoopEnd(t, l, err)
			return
		}
		if !l.active() {
			return
		}

		// Observability hook
		if s.cfg.onReceive != nil {
			s.cfg.onReceive(frame)
		}
		s.logger.Debug("received frame", slog.Int("bytes", len(frame)))

		s.handleFrame(l, frame)
	}
}

// handleFrame splits, decodes and dispatches one frame.
func (s *Session) handleFrame(l *listener, frame []byte) {
	for payload := range Split(string(frame)) {
		if !l.active() {
			return
		}

		env, err := Decode([]byte(payload))
		if err != nil {
			s.logger.Warn("dropping malformed envelope", slog.Any("error", err))
			continue
		}

		if s.cfg.onMessage != nil {
			s.cfg.onMessage(env)
		}
		s.disp.dispatch(env)
	}
}

// handleLoopEnd reports the end of a transport the session did not close
// itself, and starts reconnecting if configured.
func (s *Session) handleLoopEnd(t Transport, l *listener, err error) {
	if !l.release() {
		return
	}

	s.mu.Lock()
	if s.transport == t {
		s.transport = nil
		s.loop = nil
		s.state = StateClosed
	}
	gen := s.gen
	s.mu.Unlock()

	code, reason := StatusAbnormalClosure, ""
	var ce *CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Reason
		s.logger.Info("connection closed",
			slog.Int("code", int(code)),
			slog.String("reason", reason),
		)
	} else {
		s.logger.Error("connection lost", slog.Any("error", err))
		if s.cfg.onError != nil {
			s.cfg.onError(err)
		}
	}

	if s.cfg.onClose != nil {
		s.cfg.onClose(code, reason)
	}

	if s.cfg.reconnect != nil && code != StatusNormalClosure {
		s.reconnect(*s.cfg.reconnect, gen)
	}
}

// reconnect redials with backoff until a transport is open again, the
// attempts run out, or Disconnect is called.
func (s *Session) reconnect(cfg BackoffConfig, gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.mu.Lock()
	if s.transport != nil || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.cancelReconnect = cancel
	s.mu.Unlock()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; cfg.MaxAttempts == 0 || attempt <= cfg.MaxAttempts; attempt++ {
		delay := NextBackoffDelay(cfg, attempt, rng)
		s.logger.Info("reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		done, err := s.redial(ctx, gen)
		if done {
			return
		}
		s.logger.Warn("reconnect failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}

	s.logger.Error("giving up reconnecting", slog.Int("attempts", cfg.MaxAttempts))
	s.mu.Lock()
	if s.transport == nil {
		s.state = StateClosed
		s.cancelReconnect = nil
	}
	s.mu.Unlock()
}

// redial makes one reconnect attempt and rejoins all channels. done is true
// when no further attempts are needed.
func (s *Session) redial(ctx context.Context, gen uint64) (done bool, err error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	s.mu.Lock()
	if s.transport != nil && s.transport.State() != StateClosed {
		// Init got there first.
		s.mu.Unlock()
		return true, nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.open(ctx, gen); err != nil {
		if errors.Is(err, ErrClosed) {
			return true, err
		}
		s.setState(StateConnecting)
		return false, err
	}

	s.mu.Lock()
	s.cancelReconnect = nil
	s.mu.Unlock()

	if err := s.Connect(ctx); err != nil {
		s.logger.Warn("rejoin failed", slog.Any("error", err))
	}
	return true, nil
}

// send encodes and writes an intent.
func (s *Session) send(ctx context.Context, t Transport, in Intent) error {
	frame, err := Encode(in)
	if err != nil {
		return err
	}

	// Observability hook
	if s.cfg.onSend != nil {
		s.cfg.onSend(frame)
	}

	s.logger.Debug("sending envelope",
		slog.String("action", string(in.Action)),
		slog.String("channel", in.Channel),
		slog.String("event", in.Event),
	)

	return t.Send(ctx, frame)
}

// liveTransport returns the transport if it is open.
func (s *Session) liveTransport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transport == nil || s.transport.State() != StateOpen {
		return nil
	}
	return s.transport
}

func (s *Session) setState(state ConnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
