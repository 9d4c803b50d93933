// Package drain tracks in-flight work and the draining flag used during
// graceful shutdown.
package drain

import (
	"context"
	"sync"
	"sync/atomic"
)

// Status values reported by Controller.Status.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
)

// Counter tracks in-flight operations that should block draining.
type Counter struct {
	mu     sync.Mutex
	count  int64
	zeroCh chan struct{}
}

func (c *Counter) ensure() {
	if c.zeroCh == nil {
		c.zeroCh = make(chan struct{})
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
}

// Inc increments the in-flight counter.
func (c *Counter) Inc() {
	c.mu.Lock()
	c.ensure()
	if c.count == 0 {
		c.zeroCh = make(chan struct{})
	}
	c.count++
	c.mu.Unlock()
}

// Dec decrements the in-flight counter.
func (c *Counter) Dec() {
	c.mu.Lock()
	c.ensure()
	if c.count > 0 {
		c.count--
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
	c.mu.Unlock()
}

// Load returns the current in-flight count.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitForZero blocks until the count is zero or ctx is done.
func (c *Counter) WaitForZero(ctx context.Context) bool {
	c.mu.Lock()
	c.ensure()
	ch := c.zeroCh
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Controller combines the readiness status with an in-flight counter.
type Controller struct {
	Inflight Counter
	status   atomic.Value
}

// NewController returns a Controller in the not_ready state.
func NewController() *Controller {
	c := &Controller{}
	c.status.Store(StatusNotReady)
	return c
}

// SetReady marks the coordinator as accepting connections unless it is
// already draining.
func (c *Controller) SetReady() {
	if !c.IsDraining() {
		c.status.Store(StatusReady)
	}
}

// StartDrain stops admission of new connections.
func (c *Controller) StartDrain() { c.status.Store(StatusDraining) }

// IsDraining reports whether StartDrain was called.
func (c *Controller) IsDraining() bool { return c.Status() == StatusDraining }

// Status returns the current status string.
func (c *Controller) Status() string {
	if s, ok := c.status.Load().(string); ok {
		return s
	}
	return StatusNotReady
}
