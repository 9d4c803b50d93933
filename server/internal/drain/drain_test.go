package drain

import (
	"context"
	"testing"
	"time"
)

func TestCounterWaitForZero(t *testing.T) {
	var c Counter
	if !c.WaitForZero(context.Background()) {
		t.Fatalf("empty counter should be at zero")
	}
	c.Inc()
	c.Inc()
	if c.Load() != 2 {
		t.Fatalf("load = %d", c.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if c.WaitForZero(ctx) {
		t.Fatalf("wait should time out with work in flight")
	}

	done := make(chan bool, 1)
	go func() { done <- c.WaitForZero(context.Background()) }()
	c.Dec()
	c.Dec()
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("wait returned false")
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after count reached zero")
	}
	c.Dec()
	if c.Load() != 0 {
		t.Fatalf("count went negative: %d", c.Load())
	}
}

func TestControllerStatus(t *testing.T) {
	c := NewController()
	if c.Status() != StatusNotReady || c.IsDraining() {
		t.Fatalf("initial status %q", c.Status())
	}
	c.SetReady()
	if c.Status() != StatusReady {
		t.Fatalf("status %q", c.Status())
	}
	c.StartDrain()
	c.SetReady()
	if !c.IsDraining() || c.Status() != StatusDraining {
		t.Fatalf("drain should be sticky, status %q", c.Status())
	}
}
