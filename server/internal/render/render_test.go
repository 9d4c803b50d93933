package render

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redwoodjs/sdk-sub000/server/internal/recordstore"
)

func TestRenderUsesPeerURLAndCookie(t *testing.T) {
	var gotPath, gotQuery, gotCookie, gotMethod string
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte("rendered"))
	}))
	defer app.Close()

	c, err := NewClient(app.URL, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp, err := c.Render(context.Background(), recordstore.Record{ClientID: "c1", URL: "https://public.example/todos?list=7#top", Cookie: "session=abc"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "rendered" || resp.Status != http.StatusOK {
		t.Fatalf("body %q status %d", body, resp.Status)
	}
	if gotMethod != http.MethodGet || gotPath != "/todos" {
		t.Fatalf("method %s path %s", gotMethod, gotPath)
	}
	if gotQuery != "__rsc=&list=7" {
		t.Fatalf("query %q", gotQuery)
	}
	if gotCookie != "session=abc" {
		t.Fatalf("cookie %q", gotCookie)
	}
}

func TestCallForwardsTargetAndArgs(t *testing.T) {
	var gotBody, gotAction, gotType string
	var hasAction bool
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAction = r.URL.Query().Get(CallParam)
		_, hasAction = r.URL.Query()[CallParam]
		gotType = r.Header.Get("Content-Type")
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer app.Close()

	c, _ := NewClient(app.URL+"/base/", nil)
	target := "todos#add"
	resp, err := c.Call(context.Background(), recordstore.Record{URL: "/list"}, &target, `["milk"]`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	_ = resp.Body.Close()
	if gotBody != `["milk"]` || gotAction != "todos#add" || gotType != callContentType {
		t.Fatalf("body %q action %q type %q", gotBody, gotAction, gotType)
	}

	resp, err = c.Call(context.Background(), recordstore.Record{URL: "/list"}, nil, "[]")
	if err != nil {
		t.Fatalf("Call default: %v", err)
	}
	_ = resp.Body.Close()
	if !hasAction || gotAction != "" {
		t.Fatalf("default target should send an empty %s, got %q (present=%v)", CallParam, gotAction, hasAction)
	}
}

func TestNonSuccessStatusIsError(t *testing.T) {
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer app.Close()
	c, _ := NewClient(app.URL, nil)
	_, err := c.Render(context.Background(), recordstore.Record{URL: "/"})
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v", err)
	}
}

func TestNewClientRejectsBadScheme(t *testing.T) {
	if _, err := NewClient("ftp://example.com", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTargetJoinsBasePath(t *testing.T) {
	c, _ := NewClient("http://render.internal:3000/app/", nil)
	got, err := c.target("todos", nil, false)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	if got != "http://render.internal:3000/app/todos?__rsc=" {
		t.Fatalf("target = %q", got)
	}
}
