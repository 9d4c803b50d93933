package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/redwoodjs/sdk-sub000/core/logx"
	"github.com/redwoodjs/sdk-sub000/sdk/wire"
)

// pendingCall tracks one outstanding Invoke until its terminal frame.
type pendingCall struct {
	id     string
	stream *wire.Stream

	once   sync.Once
	done   chan struct{}
	result any
	err    error
}

func newPendingCall(id string) *pendingCall {
	return &pendingCall{id: id, done: make(chan struct{})}
}

func (p *pendingCall) resolve(result any, err error) {
	p.once.Do(func() {
		p.result, p.err = result, err
		close(p.done)
	})
}

func (p *pendingCall) fail(err error) {
	p.resolve(nil, err)
	if p.stream != nil {
		_ = p.stream.CloseWithError(err)
	}
}

// Invoke calls target with args on the coordinator and waits for the result.
// A nil target selects the default target. Invoke first waits for the
// connection to be open; ctx bounds only the caller's wait and does not
// cancel the exchange.
func (t *Transport) Invoke(ctx context.Context, target *string, args []any) (any, error) {
	if err := t.awaitConnected(ctx); err != nil {
		return nil, err
	}
	encoded, err := t.renderer.EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	call := newPendingCall(id)
	t.mu.Lock()
	t.pending[id] = call
	clientURL := t.appURL
	t.mu.Unlock()

	if err := t.send(wire.CallRequest(id, target, encoded, clientURL)); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, err
	}
	select {
	case <-call.done:
		return call.result, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending reports the number of outstanding calls.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// dispatch routes one inbound frame to the run it belongs to. Malformed
// frames and frames for unknown ids are logged and dropped.
func (t *Transport) dispatch(data []byte) {
	f, err := wire.Decode(data)
	if err != nil {
		logx.Log.Warn().Err(err).Int("len", len(data)).Msg("dropping malformed frame")
		return
	}
	switch f.Kind {
	case wire.KindResponseStart:
		t.responseStart(f)
	case wire.KindResponseChunk:
		t.mu.Lock()
		var s *wire.Stream
		if p, ok := t.pending[f.ID]; ok {
			s = p.stream
		}
		t.mu.Unlock()
		if s == nil {
			logx.Log.Debug().Str("request_id", f.ID).Msg("chunk for unknown request")
			return
		}
		_, _ = s.Write(f.Payload)
	case wire.KindResponseEnd:
		t.mu.Lock()
		p, ok := t.pending[f.ID]
		delete(t.pending, f.ID)
		var started bool
		if ok && p.stream == nil {
			p.stream = wire.NewStream()
		} else {
			started = true
		}
		t.mu.Unlock()
		if !ok {
			logx.Log.Debug().Str("request_id", f.ID).Msg("end for unknown request")
			return
		}
		if !started {
			go t.consumeCall(p)
		}
		_ = p.stream.Close()
	case wire.KindResponseError:
		t.mu.Lock()
		p, ok := t.pending[f.ID]
		delete(t.pending, f.ID)
		t.mu.Unlock()
		if !ok {
			logx.Log.Debug().Str("request_id", f.ID).Msg("error for unknown request")
			return
		}
		p.fail(&CallError{Message: f.Error})
	case wire.KindPushStart:
		t.pushStart(f)
	case wire.KindPushChunk:
		t.mu.Lock()
		s := t.pushes[f.ID]
		t.mu.Unlock()
		if s == nil {
			logx.Log.Debug().Str("push_id", f.ID).Msg("chunk for unknown push")
			return
		}
		_, _ = s.Write(f.Payload)
	case wire.KindPushEnd:
		t.mu.Lock()
		s := t.pushes[f.ID]
		delete(t.pushes, f.ID)
		t.mu.Unlock()
		if s == nil {
			logx.Log.Debug().Str("push_id", f.ID).Msg("end for unknown push")
			return
		}
		_ = s.Close()
	default:
		logx.Log.Debug().Str("kind", f.Kind.String()).Msg("unexpected frame kind from coordinator")
	}
}

func (t *Transport) responseStart(f wire.Frame) {
	t.mu.Lock()
	p, ok := t.pending[f.ID]
	if !ok || p.stream != nil {
		t.mu.Unlock()
		logx.Log.Debug().Str("request_id", f.ID).Msg("start for unknown request")
		return
	}
	p.stream = wire.NewStream()
	t.mu.Unlock()
	go t.consumeCall(p)
}

func (t *Transport) consumeCall(p *pendingCall) {
	payload, err := t.renderer.Decode(p.stream)
	if err != nil {
		p.resolve(nil, err)
		return
	}
	if payload.View != nil {
		t.renderer.Install(payload.View)
	}
	p.resolve(payload.Result, nil)
}

func (t *Transport) pushStart(f wire.Frame) {
	t.mu.Lock()
	if _, ok := t.pushes[f.ID]; ok {
		t.mu.Unlock()
		logx.Log.Debug().Str("push_id", f.ID).Msg("duplicate push start")
		return
	}
	if _, ok := t.pending[f.ID]; ok {
		t.mu.Unlock()
		logx.Log.Debug().Str("push_id", f.ID).Msg("push start collides with a pending request")
		return
	}
	s := wire.NewStream()
	t.pushes[f.ID] = s
	t.mu.Unlock()
	go func() {
		payload, err := t.renderer.Decode(s)
		if err != nil {
			logx.Log.Warn().Err(err).Str("push_id", f.ID).Msg("decode push")
			return
		}
		t.renderer.Install(payload.View)
	}()
}
