package reconnect

import (
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	p := Fixed(2 * time.Second)
	for _, attempt := range []int{0, 1, 50, 10000} {
		if d := p(attempt); d != 2*time.Second {
			t.Fatalf("attempt %d: got %v", attempt, d)
		}
	}
	if d := Fixed(0)(3); d != DefaultDelay {
		t.Fatalf("zero delay should fall back to default, got %v", d)
	}
}

func TestBackoff(t *testing.T) {
	p := Backoff()
	if d := p(0); d != time.Second {
		t.Fatalf("attempt 0: got %v", d)
	}
	if d := p(4); d != 5*time.Second {
		t.Fatalf("attempt 4: got %v", d)
	}
	if d := p(len(Schedule)); d != 30*time.Second {
		t.Fatalf("past schedule: got %v", d)
	}
	if d := p(1 << 20); d != 30*time.Second {
		t.Fatalf("far past schedule: got %v", d)
	}
}
