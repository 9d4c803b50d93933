package wire

import (
	"io"
	"sync"
)

// Stream reassembles the payloads of one correlated run of chunk frames into
// a byte stream. Writes never block, so the goroutine demultiplexing frames
// is not held up by a slow consumer. Reads block until data arrives or the
// run terminates. A Stream is single pass and cannot be restarted.
type Stream struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  []byte
	err  error
}

// NewStream returns an open, empty stream.
func NewStream() *Stream {
	s := &Stream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write appends a copy of p. It fails with io.ErrClosedPipe once the stream
// has been closed.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, io.ErrClosedPipe
	}
	s.buf = append(s.buf, p...)
	s.cond.Broadcast()
	return len(p), nil
}

// Close ends the stream; readers drain buffered data and then see io.EOF.
func (s *Stream) Close() error { return s.CloseWithError(nil) }

// CloseWithError ends the stream; readers drain buffered data and then see
// err. A nil err is reported as io.EOF. Only the first close takes effect.
func (s *Stream) CloseWithError(err error) error {
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 && s.err == nil {
		s.cond.Wait()
	}
	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		if len(s.buf) == 0 {
			s.buf = nil
		}
		return n, nil
	}
	return 0, s.err
}
