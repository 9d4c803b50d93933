// Package transport is the peer side of the realtime protocol. A Transport
// keeps one WebSocket connection to the coordinator alive, issues remote
// calls over it and installs view updates pushed by the coordinator.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/redwoodjs/sdk-sub000/core/logx"
	"github.com/redwoodjs/sdk-sub000/core/reconnect"
	"github.com/redwoodjs/sdk-sub000/sdk/wire"
)

// maxMessageSize bounds a single inbound frame.
const maxMessageSize = 4 << 20

var (
	ErrNotConnected   = errors.New("transport: not connected")
	ErrConnectionLost = errors.New("transport: connection lost")
	ErrClosed         = errors.New("transport: closed")
)

// CallError carries the message of a RESPONSE_ERROR frame.
type CallError struct {
	Message string
}

func (e *CallError) Error() string { return e.Message }

// Config configures a Transport.
type Config struct {
	// ServerURL is the coordinator endpoint, e.g. ws://host:8080/__realtime.
	ServerURL string
	// Key selects the broadcast group; empty uses the coordinator default.
	Key string
	// AppURL is the peer's logical application URL. The coordinator renders
	// pushes for this peer from it.
	AppURL string
	// Cookie is forwarded to the coordinator and reattached to every render
	// request made on this peer's behalf.
	Cookie string
	// Origin overrides the Origin header derived from ServerURL.
	Origin string
	// Reconnect picks the wait between attempts. Nil waits reconnect.DefaultDelay.
	Reconnect reconnect.Policy
	// RejectPendingOnClose rejects outstanding calls with ErrConnectionLost
	// when the connection drops. When false, such calls never resolve.
	RejectPendingOnClose bool
	// OnStateChange observes lifecycle transitions.
	OnStateChange func(State)
	Clock         clockwork.Clock
}

// Transport multiplexes remote calls and pushed updates over one connection.
type Transport struct {
	cfg       Config
	renderer  Renderer
	clock     clockwork.Clock
	reconnect reconnect.Policy
	origin    string

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	connCtx  context.Context
	ready    chan struct{}
	appURL   string
	clientID string
	pending  map[string]*pendingCall
	pushes   map[string]*wire.Stream
	running  bool
	cancel   context.CancelFunc
	closed   chan struct{}
	isClosed bool
}

// New validates cfg and returns an idle Transport. Call Run to connect.
func New(cfg Config, renderer Renderer) (*Transport, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("transport: unsupported server url scheme %q", u.Scheme)
	}
	if renderer == nil {
		return nil, errors.New("transport: renderer is required")
	}
	origin := cfg.Origin
	if origin == "" {
		scheme := "http"
		if u.Scheme == "wss" || u.Scheme == "https" {
			scheme = "https"
		}
		origin = scheme + "://" + u.Host
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	policy := cfg.Reconnect
	if policy == nil {
		policy = reconnect.Fixed(reconnect.DefaultDelay)
	}
	appURL := cfg.AppURL
	if appURL == "" {
		appURL = "/"
	}
	return &Transport{
		cfg:       cfg,
		renderer:  renderer,
		clock:     clock,
		reconnect: policy,
		origin:    origin,
		ready:     make(chan struct{}),
		appURL:    appURL,
		pending:   make(map[string]*pendingCall),
		pushes:    make(map[string]*wire.Stream),
		closed:    make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ClientID returns the id announced on the current connection, if any.
func (t *Transport) ClientID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clientID
}

// SetURL updates the application URL sent with calls and on the next handshake.
func (t *Transport) SetURL(u string) {
	t.mu.Lock()
	t.appURL = u
	t.mu.Unlock()
}

// Run connects and keeps reconnecting until ctx ends or Close is called.
// It never gives up on its own.
func (t *Transport) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return errors.New("transport: already running")
	}
	if t.isClosed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.running = true
	t.cancel = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		t.setState(StateDisconnected)
	}()

	attempt := 0
	for {
		connected, err := t.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			attempt = 0
		}
		delay := t.reconnect(attempt)
		attempt++
		t.setState(StateRetryPending)
		logx.Log.Warn().Err(err).Dur("delay", delay).Msg("connection closed; retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.clock.After(delay):
		}
	}
}

// Close stops Run and fails callers still waiting for a connection.
func (t *Transport) Close() {
	t.mu.Lock()
	if !t.isClosed {
		t.isClosed = true
		close(t.closed)
	}
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	changed := t.state != s
	t.state = s
	t.mu.Unlock()
	if changed && t.cfg.OnStateChange != nil {
		t.cfg.OnStateChange(s)
	}
}

func (t *Transport) handshakeURL(clientID string) string {
	u, _ := url.Parse(t.cfg.ServerURL)
	q := u.Query()
	if t.cfg.Key != "" {
		q.Set("key", t.cfg.Key)
	}
	t.mu.Lock()
	q.Set("url", t.appURL)
	t.mu.Unlock()
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()
	return u.String()
}

// connectAndServe dials once and reads frames until the connection ends.
// The bool reports whether the dial succeeded.
func (t *Transport) connectAndServe(ctx context.Context) (bool, error) {
	t.setState(StateConnecting)
	clientID := uuid.NewString()
	hdr := http.Header{}
	hdr.Set("Origin", t.origin)
	if t.cfg.Cookie != "" {
		hdr.Set("Cookie", t.cfg.Cookie)
	}
	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()
	ws, _, err := websocket.Dial(connCtx, t.handshakeURL(clientID), &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return false, err
	}
	defer func() { _ = ws.CloseNow() }()
	ws.SetReadLimit(maxMessageSize)

	t.mu.Lock()
	t.conn = ws
	t.connCtx = connCtx
	t.clientID = clientID
	close(t.ready)
	t.mu.Unlock()
	t.setState(StateConnected)
	logx.Log.Info().Str("server", t.cfg.ServerURL).Str("client_id", clientID).Msg("connected to coordinator")
	defer t.disconnected()

	for {
		typ, data, err := ws.Read(connCtx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				logx.Log.Info().Str("reason", ce.Reason).Int("code", int(ce.Code)).Msg("coordinator connection closed")
			}
			return true, err
		}
		if typ != websocket.MessageBinary {
			logx.Log.Debug().Msg("dropping non-binary message")
			continue
		}
		t.dispatch(data)
	}
}

// disconnected resets per-connection state. Push streams in progress are
// failed; pending calls are rejected only when RejectPendingOnClose is set.
func (t *Transport) disconnected() {
	t.mu.Lock()
	t.conn = nil
	t.connCtx = nil
	t.clientID = ""
	t.ready = make(chan struct{})
	pushes := t.pushes
	t.pushes = make(map[string]*wire.Stream)
	var lost []*pendingCall
	if t.cfg.RejectPendingOnClose {
		for id, p := range t.pending {
			lost = append(lost, p)
			delete(t.pending, id)
		}
	}
	t.mu.Unlock()
	for _, s := range pushes {
		_ = s.CloseWithError(ErrConnectionLost)
	}
	for _, p := range lost {
		p.fail(ErrConnectionLost)
	}
}

// send writes one frame. It fails immediately with ErrNotConnected instead
// of queueing when there is no open connection.
func (t *Transport) send(f wire.Frame) error {
	b, err := wire.Encode(f)
	if err != nil {
		return err
	}
	t.mu.Lock()
	ws, ctx := t.conn, t.connCtx
	t.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return ws.Write(ctx, websocket.MessageBinary, b)
}

// awaitConnected blocks until a connection is open, ctx ends or the
// transport is closed.
func (t *Transport) awaitConnected(ctx context.Context) error {
	t.mu.Lock()
	ready := t.ready
	t.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-t.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
