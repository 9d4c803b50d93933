// Package coordinator owns the per-group connection registry. It answers
// call requests by proxying them to the render application and pushes a
// fresh render to every other connection in the caller's group.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redwoodjs/sdk-sub000/server/internal/drain"
	"github.com/redwoodjs/sdk-sub000/server/internal/recordstore"
	"github.com/redwoodjs/sdk-sub000/server/internal/render"
)

const (
	// DefaultGroup is used when neither the handshake nor Options name a group.
	DefaultGroup = "default"

	defaultPushConcurrency = 16
	defaultWriteTimeout    = 10 * time.Second
	defaultPingInterval    = 30 * time.Second
	maxMessageSize         = 4 << 20
	chunkSize              = 32 * 1024
	sendQueueSize          = 64
)

// Renderer produces render streams for a connection record.
type Renderer interface {
	Render(ctx context.Context, rec recordstore.Record) (*render.Response, error)
	Call(ctx context.Context, rec recordstore.Record, target *string, args string) (*render.Response, error)
}

// Options tunes a Hub.
type Options struct {
	// DefaultGroup is the group key used when a handshake omits one.
	DefaultGroup string
	// PushConcurrency bounds concurrent pushes for one call.
	PushConcurrency int
	// CallRate is the sustained calls per second allowed per connection;
	// zero disables limiting.
	CallRate  float64
	CallBurst int
	// RequestTimeout bounds each render request and its streaming; zero
	// means no limit.
	RequestTimeout time.Duration
	// WriteTimeout bounds each write to a peer. A peer whose writes or send
	// queue stall longer than this is dropped.
	WriteTimeout time.Duration
	// PingInterval is how often peers are pinged. A peer that does not answer
	// within WriteTimeout is dropped.
	PingInterval time.Duration
	// Drain tracks in-flight work and rejects handshakes while draining.
	Drain *drain.Controller
}

// Hub holds every group served by one coordinator instance.
type Hub struct {
	opts     Options
	renderer Renderer
	store    recordstore.Store

	mu     sync.Mutex
	groups map[string]*Group

	// active counts ServeHTTP calls that accepted a socket and have not
	// finished their disconnect.
	active drain.Counter
	closed atomic.Bool
}

var errHubClosed = errors.New("coordinator: hub closed")

// NewHub returns a Hub. A nil store keeps records in memory only.
func NewHub(renderer Renderer, store recordstore.Store, opts Options) (*Hub, error) {
	if renderer == nil {
		return nil, errors.New("coordinator: renderer is required")
	}
	if store == nil {
		store = recordstore.NewMemoryStore()
	}
	if opts.DefaultGroup == "" {
		opts.DefaultGroup = DefaultGroup
	}
	if opts.PushConcurrency <= 0 {
		opts.PushConcurrency = defaultPushConcurrency
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.CallBurst <= 0 {
		opts.CallBurst = 1
	}
	if opts.Drain == nil {
		opts.Drain = drain.NewController()
	}
	return &Hub{opts: opts, renderer: renderer, store: store, groups: make(map[string]*Group)}, nil
}

// Drain returns the controller tracking in-flight calls and pushes.
func (h *Hub) Drain() *drain.Controller { return h.opts.Drain }

// group returns the live group for key, creating it on first use.
func (h *Hub) group(key string) *Group {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[key]
	if !ok {
		g = newGroup(key)
		h.groups[key] = g
	}
	return g
}

// release drops g from the hub once its last member has left.
func (h *Hub) release(g *Group) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[g.key] != g {
		return
	}
	if g.retireIfEmpty() {
		delete(h.groups, g.key)
	}
}

// GroupState summarizes one group for the state endpoint.
type GroupState struct {
	Key         string   `json:"key"`
	Connections int      `json:"connections"`
	Clients     []string `json:"clients,omitempty"`
}

// State is the coordinator summary served at /api/state.
type State struct {
	Status string       `json:"status"`
	Groups []GroupState `json:"groups"`
}

// Snapshot returns the current groups sorted by key.
func (h *Hub) Snapshot() State {
	h.mu.Lock()
	groups := make([]*Group, 0, len(h.groups))
	for _, g := range h.groups {
		groups = append(groups, g)
	}
	h.mu.Unlock()
	st := State{Status: h.opts.Drain.Status(), Groups: make([]GroupState, 0, len(groups))}
	for _, g := range groups {
		ids := g.clientIDs()
		if len(ids) == 0 {
			continue
		}
		st.Groups = append(st.Groups, GroupState{Key: g.key, Connections: len(ids), Clients: ids})
	}
	sort.Slice(st.Groups, func(i, j int) bool { return st.Groups[i].Key < st.Groups[j].Key })
	return st
}

// Close refuses new peers, disconnects every admitted peer and waits until
// each one's record has been removed from the store. It returns early with
// an error when ctx ends first.
func (h *Hub) Close(ctx context.Context) error {
	h.closed.Store(true)
	h.mu.Lock()
	groups := make([]*Group, 0, len(h.groups))
	for _, g := range h.groups {
		groups = append(groups, g)
	}
	h.mu.Unlock()
	for _, g := range groups {
		for _, c := range g.conns() {
			c.close(closeGoingAway, "coordinator shutting down")
		}
	}
	if !h.active.WaitForZero(ctx) {
		return fmt.Errorf("coordinator: %d connections still open: %w", h.active.Load(), ctx.Err())
	}
	return nil
}
