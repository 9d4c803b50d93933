package handshake

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		upgrade string
		origin  string
		status  int
		reason  string
	}{
		{name: "no upgrade", target: "http://example.com/__realtime", origin: "http://example.com", status: http.StatusBadRequest, reason: "Expected WebSocket"},
		{name: "wrong upgrade", target: "http://example.com/__realtime", upgrade: "h2c", origin: "http://example.com", status: http.StatusBadRequest, reason: "Expected WebSocket"},
		{name: "missing origin", target: "http://example.com/__realtime", upgrade: "websocket", status: http.StatusForbidden},
		{name: "same origin", target: "http://example.com/__realtime", upgrade: "websocket", origin: "http://example.com"},
		{name: "upgrade case insensitive", target: "http://example.com/__realtime", upgrade: "WebSocket", origin: "http://example.com"},
		{name: "different port accepted", target: "http://example.com:8080/__realtime", upgrade: "websocket", origin: "http://example.com"},
		{name: "origin port ignored", target: "http://example.com/__realtime", upgrade: "websocket", origin: "http://example.com:3000"},
		{name: "other host", target: "http://example.com/__realtime", upgrade: "websocket", origin: "http://other.com", status: http.StatusForbidden},
		{name: "scheme mismatch", target: "http://example.com/__realtime", upgrade: "websocket", origin: "https://example.com", status: http.StatusForbidden},
		{name: "tls request", target: "https://example.com/__realtime", upgrade: "websocket", origin: "https://example.com"},
		{name: "garbage origin", target: "http://example.com/__realtime", upgrade: "websocket", origin: "::::", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.upgrade != "" {
				r.Header.Set("Upgrade", tt.upgrade)
			}
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			err := Validate(r)
			if tt.status == 0 {
				if err != nil {
					t.Fatalf("expected accept, got %v", err)
				}
				return
			}
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("expected rejection, got %v", err)
			}
			if rej.Status != tt.status {
				t.Fatalf("status = %d; want %d", rej.Status, tt.status)
			}
			if tt.reason != "" && rej.Reason != tt.reason {
				t.Fatalf("reason = %q; want %q", rej.Reason, tt.reason)
			}
		})
	}
}

func TestValidateServerSideRequest(t *testing.T) {
	// Requests read by net/http carry no scheme; plain connections are http.
	r := &http.Request{Host: "example.com:9000", Header: http.Header{}, URL: mustURL(t, "/__realtime")}
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Origin", "http://example.com")
	if err := Validate(r); err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}
