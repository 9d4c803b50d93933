// Package render issues requests to the application that produces render
// output on behalf of a connected peer.
package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/redwoodjs/sdk-sub000/server/internal/recordstore"
)

const (
	// RenderParam marks a request as a render stream request.
	RenderParam = "__rsc"
	// CallParam carries the forwarded call target.
	CallParam = "__rsc_action_id"

	callContentType = "text/plain;charset=UTF-8"
)

// StatusError reports a non-2xx response from the render application.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("render: unexpected status %d %s", e.Status, http.StatusText(e.Status))
}

// Response is a successful render stream. Callers must close Body.
type Response struct {
	Status int
	Body   io.ReadCloser
}

// Client talks to the render application at a fixed base URL.
type Client struct {
	base *url.URL
	hc   *http.Client
}

// NewClient returns a Client for baseURL. A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("render: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("render: unsupported base url scheme %q", u.Scheme)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: u, hc: hc}, nil
}

// Render fetches a fresh render stream for rec from its own URL and credentials.
func (c *Client) Render(ctx context.Context, rec recordstore.Record) (*Response, error) {
	target, err := c.target(rec.URL, nil, false)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, rec.Cookie)
}

// Call forwards a remote call for rec. A nil callTarget selects the default
// target; args is the already encoded argument body.
func (c *Client) Call(ctx context.Context, rec recordstore.Record, callTarget *string, args string) (*Response, error) {
	target, err := c.target(rec.URL, callTarget, true)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(args))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", callContentType)
	return c.do(req, rec.Cookie)
}

// target keeps the path and query of the peer URL and points them at the
// render application.
func (c *Client) target(peerURL string, callTarget *string, call bool) (string, error) {
	pu, err := url.Parse(peerURL)
	if err != nil {
		return "", fmt.Errorf("render: parse peer url %q: %w", peerURL, err)
	}
	u := *c.base
	p := pu.Path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u.Path = strings.TrimSuffix(c.base.Path, "/") + p
	u.RawPath = ""
	q := pu.Query()
	q.Set(RenderParam, "")
	if call {
		id := ""
		if callTarget != nil {
			id = *callTarget
		}
		q.Set(CallParam, id)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

func (c *Client) do(req *http.Request, cookie string) (*Response, error) {
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		return nil, &StatusError{Status: resp.StatusCode}
	}
	return &Response{Status: resp.StatusCode, Body: resp.Body}, nil
}
