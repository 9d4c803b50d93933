package wire

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestStreamReadAfterClose(t *testing.T) {
	s := NewStream()
	_, _ = s.Write([]byte("ab"))
	_, _ = s.Write([]byte("cd"))
	_ = s.Close()
	b, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "abcd" {
		t.Fatalf("got %q", b)
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("write after close: %v", err)
	}
}

func TestStreamBlocksUntilData(t *testing.T) {
	s := NewStream()
	done := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(s)
		done <- string(b)
	}()
	select {
	case <-done:
		t.Fatalf("reader returned before close")
	case <-time.After(20 * time.Millisecond):
	}
	_, _ = s.Write([]byte("late"))
	_ = s.Close()
	select {
	case got := <-done:
		if got != "late" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("reader did not finish")
	}
}

func TestStreamCloseWithError(t *testing.T) {
	s := NewStream()
	boom := errors.New("boom")
	_, _ = s.Write([]byte("partial"))
	_ = s.CloseWithError(boom)
	_ = s.Close()
	b, err := io.ReadAll(s)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want boom", err)
	}
	if string(b) != "partial" {
		t.Fatalf("buffered data lost: %q", b)
	}
}
