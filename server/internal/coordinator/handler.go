package coordinator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/redwoodjs/sdk-sub000/core/logx"
	"github.com/redwoodjs/sdk-sub000/core/secret"
	"github.com/redwoodjs/sdk-sub000/sdk/wire"
	"github.com/redwoodjs/sdk-sub000/server/internal/handshake"
	"github.com/redwoodjs/sdk-sub000/server/internal/metrics"
	"github.com/redwoodjs/sdk-sub000/server/internal/recordstore"
)

const storeTimeout = 5 * time.Second

// ServeHTTP validates the handshake, admits the connection into its group
// and serves frames until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opts.Drain.IsDraining() || h.closed.Load() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	if err := handshake.Validate(r); err != nil {
		var rej *handshake.Rejection
		if errors.As(err, &rej) {
			http.Error(w, rej.Reason, rej.Status)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	clientID := q.Get("clientId")
	if clientID == "" {
		http.Error(w, "Missing clientId", http.StatusBadRequest)
		return
	}
	key := q.Get("key")
	if key == "" {
		key = h.opts.DefaultGroup
	}
	appURL := q.Get("url")
	if appURL == "" {
		appURL = "/"
	}
	rec := recordstore.Record{ClientID: clientID, URL: appURL, Cookie: r.Header.Get("Cookie")}

	// Origin was checked above with ports ignored, which the library's own
	// check does not allow.
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logx.Log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws accept")
		return
	}
	ws.SetReadLimit(maxMessageSize)
	h.active.Inc()
	defer h.active.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var limiter *rate.Limiter
	if h.opts.CallRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.opts.CallRate), h.opts.CallBurst)
	}

	c, err := h.admit(ctx, key, rec, ws, r.RemoteAddr, limiter)
	if errors.Is(err, errHubClosed) {
		_ = ws.Close(closeGoingAway, "coordinator shutting down")
		return
	}
	if err != nil {
		logx.Log.Error().Err(err).Str("group", key).Str("client_id", clientID).Msg("admit connection")
		_ = ws.Close(websocket.StatusInternalError, "admission failed")
		return
	}
	defer h.disconnect(c)

	go c.writeLoop(ctx)
	go c.pingLoop(ctx, h.opts.PingInterval)
	h.readLoop(ctx, c)
}

func (h *Hub) admit(ctx context.Context, key string, rec recordstore.Record, ws *websocket.Conn, remote string, limiter *rate.Limiter) (*conn, error) {
	for {
		if h.closed.Load() {
			return nil, errHubClosed
		}
		g := h.group(key)
		c := newConn(rec.ClientID, g, ws, remote, limiter, h.opts.WriteTimeout)
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		replaced, ok, err := g.admit(sctx, h.store, c, rec)
		cancel()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if replaced != nil {
			logx.Log.Info().Str("group", key).Str("client_id", rec.ClientID).Msg("replacing existing connection")
			replaced.close(closeReplaced, "replaced by a newer connection")
		} else {
			metrics.ConnectionOpened(key)
		}
		logx.Log.Info().Str("group", key).Str("client_id", rec.ClientID).Str("url", rec.URL).Str("remote", remote).
			Str("cookie", secret.MaskCookie(rec.Cookie)).Msg("connection admitted")
		// Close may have snapshotted the group before c joined it.
		if h.closed.Load() {
			c.close(closeGoingAway, "coordinator shutting down")
		}
		return c, nil
	}
}

func (h *Hub) disconnect(c *conn) {
	c.close(websocket.StatusNormalClosure, "")
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	removed, err := c.group.remove(ctx, h.store, c)
	if err != nil {
		logx.Log.Warn().Err(err).Str("group", c.group.key).Str("client_id", c.clientID).Msg("delete connection record")
	}
	if removed {
		metrics.ConnectionClosed(c.group.key)
		logx.Log.Info().Str("group", c.group.key).Str("client_id", c.clientID).Msg("connection removed")
	}
	h.release(c.group)
}

func (h *Hub) readLoop(ctx context.Context, c *conn) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				lvl := logx.Log.Info()
				if ce.Code != websocket.StatusNormalClosure && ce.Code != websocket.StatusGoingAway {
					lvl = logx.Log.Warn()
				}
				lvl.Str("group", c.group.key).Str("client_id", c.clientID).Str("reason", ce.Reason).Msg("disconnected")
			} else {
				logx.Log.Debug().Err(err).Str("group", c.group.key).Str("client_id", c.clientID).Msg("disconnected")
			}
			return
		}
		if typ != websocket.MessageBinary {
			logx.Log.Debug().Str("client_id", c.clientID).Msg("dropping non-binary message")
			continue
		}
		f, err := wire.Decode(data)
		if err != nil {
			metrics.RecordDecodeError()
			logx.Log.Warn().Err(err).Str("group", c.group.key).Str("client_id", c.clientID).Int("len", len(data)).Msg("dropping malformed frame")
			continue
		}
		if f.Kind != wire.KindCallRequest {
			logx.Log.Debug().Str("client_id", c.clientID).Str("kind", f.Kind.String()).Msg("unexpected frame kind from peer")
			continue
		}
		h.opts.Drain.Inflight.Inc()
		go func() {
			defer h.opts.Drain.Inflight.Dec()
			h.handleCall(ctx, c, f)
		}()
	}
}
