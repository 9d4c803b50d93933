// Package handshake checks WebSocket upgrade requests before a connection is
// admitted to a group.
package handshake

import (
	"net/http"
	"net/url"
	"strings"
)

// Rejection is returned for requests that must not be upgraded.
type Rejection struct {
	Status int
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Validate accepts r when it asks for a WebSocket upgrade and declares an
// Origin whose scheme and host match the request's own. Ports are not
// compared. It returns nil or a *Rejection and has no side effects.
func Validate(r *http.Request) error {
	if !strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket") {
		return &Rejection{Status: http.StatusBadRequest, Reason: "Expected WebSocket"}
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return &Rejection{Status: http.StatusForbidden, Reason: "Missing Origin"}
	}
	o, err := url.Parse(origin)
	if err != nil || o.Host == "" {
		return &Rejection{Status: http.StatusForbidden, Reason: "Invalid Origin"}
	}
	if !strings.EqualFold(o.Scheme, requestScheme(r)) || !strings.EqualFold(o.Hostname(), requestHostname(r)) {
		return &Rejection{Status: http.StatusForbidden, Reason: "Invalid Origin"}
	}
	return nil
}

func requestScheme(r *http.Request) string {
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func requestHostname(r *http.Request) string {
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	return (&url.URL{Host: host}).Hostname()
}
