package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/redwoodjs/sdk-sub000/core/logx"
	"github.com/redwoodjs/sdk-sub000/sdk/wire"
	"github.com/redwoodjs/sdk-sub000/server/internal/metrics"
)

const (
	closeGoingAway = websocket.StatusGoingAway
	closeReplaced  = websocket.StatusPolicyViolation
)

var (
	errConnClosed  = errors.New("coordinator: connection closed")
	errSendStalled = errors.New("coordinator: send queue stalled")
)

// conn is one admitted peer. Frames are queued on send and written by a
// single writer goroutine, so frames queued by one producer keep their order.
type conn struct {
	clientID string
	group    *Group
	remote   string
	ws       *websocket.Conn
	limiter  *rate.Limiter
	// writeTimeout bounds one socket write, one ping round trip and the
	// wait for send queue space.
	writeTimeout time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(clientID string, g *Group, ws *websocket.Conn, remote string, limiter *rate.Limiter, writeTimeout time.Duration) *conn {
	return &conn{
		clientID:     clientID,
		group:        g,
		remote:       remote,
		ws:           ws,
		limiter:      limiter,
		writeTimeout: writeTimeout,
		send:         make(chan []byte, sendQueueSize),
		done:         make(chan struct{}),
	}
}

// enqueue queues one encoded frame for the writer. It fails once the
// connection is closed or ctx ends. A queue that stays full for writeTimeout
// means the peer stopped reading; the connection is then aborted.
func (c *conn) enqueue(ctx context.Context, f wire.Frame) error {
	b := wire.MustEncode(f)
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
	}
	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		logx.Log.Warn().Str("group", c.group.key).Str("client_id", c.clientID).Msg("send queue stalled; dropping peer")
		c.abort(metrics.EvictStalled)
		return errSendStalled
	}
}

func (c *conn) sendError(ctx context.Context, id, msg string) {
	if err := c.enqueue(ctx, wire.ErrorFrame(id, msg)); err != nil {
		logx.Log.Debug().Err(err).Str("client_id", c.clientID).Str("request_id", id).Msg("drop error frame")
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case b := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageBinary, b)
			cancel()
			if err != nil {
				logx.Log.Debug().Err(err).Str("group", c.group.key).Str("client_id", c.clientID).Msg("ws write")
				c.abort(metrics.EvictWrite)
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pingLoop drops the peer when a ping is not answered within writeTimeout.
// Pongs are only observed while readLoop is reading.
func (c *conn) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				select {
				case <-c.done:
					return
				default:
				}
				if ctx.Err() != nil {
					return
				}
				logx.Log.Warn().Err(err).Str("group", c.group.key).Str("client_id", c.clientID).Msg("peer missed ping; dropping")
				c.abort(metrics.EvictPing)
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// close stops the writer and closes the socket once with a close handshake.
func (c *conn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		go func() { _ = c.ws.Close(code, reason) }()
	})
}

// abort stops the writer and drops the socket without a close handshake,
// for peers that are no longer reading.
func (c *conn) abort(reason string) {
	c.closeOnce.Do(func() {
		metrics.RecordEviction(reason)
		close(c.done)
		go func() { _ = c.ws.CloseNow() }()
	})
}
