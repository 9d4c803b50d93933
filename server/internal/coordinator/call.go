package coordinator

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/redwoodjs/sdk-sub000/core/logx"
	"github.com/redwoodjs/sdk-sub000/sdk/wire"
	"github.com/redwoodjs/sdk-sub000/server/internal/metrics"
)

// handleCall answers one CALL_REQUEST from c. Failures are reported only to
// c; on success every other member of the group gets a fresh push.
func (h *Hub) handleCall(ctx context.Context, c *conn, f wire.Frame) {
	start := time.Now()
	log := logx.Log.With().Str("group", c.group.key).Str("client_id", c.clientID).Str("request_id", f.ID).Logger()

	if c.limiter != nil && !c.limiter.Allow() {
		log.Warn().Msg("call rate limited")
		metrics.RecordCall(metrics.ResultLimited, 0)
		c.sendError(ctx, f.ID, "rate limited")
		return
	}

	rec, err := c.group.lookup(ctx, h.store, c.clientID)
	if err != nil {
		log.Error().Err(err).Msg("lookup connection record")
		metrics.RecordCall(metrics.ResultError, 0)
		c.sendError(ctx, f.ID, "unknown connection")
		return
	}

	callCtx, cancel := h.requestContext(ctx)
	defer cancel()
	resp, err := h.renderer.Call(callCtx, rec, f.Target, f.Args)
	if err != nil {
		log.Error().Err(err).Msg("call failed")
		metrics.RecordCall(metrics.ResultError, time.Since(start).Seconds())
		c.sendError(ctx, f.ID, err.Error())
		return
	}

	h.opts.Drain.Inflight.Inc()
	go func() {
		defer h.opts.Drain.Inflight.Dec()
		h.pushAll(context.WithoutCancel(ctx), c.group, c.clientID)
	}()

	if err := h.stream(callCtx, c, false, f.ID, resp.Status, resp.Body); err != nil {
		log.Warn().Err(err).Msg("call response interrupted")
		metrics.RecordCall(metrics.ResultError, time.Since(start).Seconds())
		return
	}
	metrics.RecordCall(metrics.ResultSuccess, time.Since(start).Seconds())
	log.Debug().Dur("duration", time.Since(start)).Msg("call complete")
}

// pushAll sends a fresh render to every member of g except the caller, each
// rendered from that member's own record. Every push runs independently.
func (h *Hub) pushAll(ctx context.Context, g *Group, except string) {
	members, errs := g.others(ctx, h.store, except)
	for _, err := range errs {
		metrics.RecordPush(metrics.ResultError)
		logx.Log.Warn().Err(err).Str("group", g.key).Msg("push skipped: record unavailable")
	}
	if len(members) == 0 {
		return
	}
	var eg errgroup.Group
	eg.SetLimit(h.opts.PushConcurrency)
	for _, m := range members {
		eg.Go(func() error {
			h.push(ctx, m)
			return nil
		})
	}
	_ = eg.Wait()
}

func (h *Hub) push(ctx context.Context, m member) {
	id := uuid.NewString()
	log := logx.Log.With().Str("group", m.conn.group.key).Str("client_id", m.rec.ClientID).Str("push_id", id).Logger()
	pctx, cancel := h.requestContext(ctx)
	defer cancel()
	resp, err := h.renderer.Render(pctx, m.rec)
	if err != nil {
		metrics.RecordPush(metrics.ResultError)
		log.Warn().Err(err).Msg("push render failed")
		return
	}
	if err := h.stream(pctx, m.conn, true, id, resp.Status, resp.Body); err != nil {
		metrics.RecordPush(metrics.ResultError)
		log.Warn().Err(err).Msg("push interrupted")
		return
	}
	metrics.RecordPush(metrics.ResultSuccess)
}

// stream relays body to c as one START, CHUNK..., END run under id. A read
// failure after START ends a call with RESPONSE_ERROR and a push with a
// plain END, since pushes have no error frame.
func (h *Hub) stream(ctx context.Context, c *conn, push bool, id string, status int, body io.ReadCloser) error {
	defer func() { _ = body.Close() }()
	if err := c.enqueue(ctx, wire.Start(push, id, statusByte(status))); err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := c.enqueue(ctx, wire.Chunk(push, id, buf[:n])); err != nil {
				return err
			}
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			return c.enqueue(ctx, wire.End(push, id))
		}
		if push {
			_ = c.enqueue(ctx, wire.End(push, id))
		} else {
			c.sendError(context.WithoutCancel(ctx), id, rerr.Error())
		}
		return rerr
	}
}

func (h *Hub) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, h.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func statusByte(status int) uint8 {
	if status < 0 || status > 255 {
		return 200
	}
	return uint8(status)
}
