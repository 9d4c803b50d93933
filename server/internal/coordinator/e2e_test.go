package coordinator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redwoodjs/sdk-sub000/sdk/transport"
)

func startPeer(t *testing.T, e *testEnv, appURL, cookie string, installs chan<- string) *transport.Transport {
	t.Helper()
	tr, err := transport.New(transport.Config{
		ServerURL: strings.Replace(e.srv.URL, "http", "ws", 1) + "/",
		Key:       "room",
		AppURL:    appURL,
		Cookie:    cookie,
	}, &transport.RawRenderer{OnInstall: func(b []byte) { installs <- string(b) }})
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		tr.Close()
		<-done
	})
	return tr
}

func TestTransportEndToEnd(t *testing.T) {
	e := newTestEnv(t, Options{})
	callerInstalls := make(chan string, 4)
	peerInstalls := make(chan string, 4)
	caller := startPeer(t, e, "/list", "session=a", callerInstalls)
	startPeer(t, e, "/board", "session=b", peerInstalls)
	waitConnections(t, e.hub, "room", 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	target := "todos#add"
	res, err := caller.Invoke(ctx, &target, []any{"milk"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	b, ok := res.([]byte)
	if !ok || string(b) != `result:todos#add:["milk"]` {
		t.Fatalf("result %v", res)
	}

	select {
	case v := <-peerInstalls:
		if v != "view:/board:session=b" {
			t.Fatalf("peer installed %q", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("peer never received a push")
	}

	// The caller installs its own call response, never a push.
	select {
	case v := <-callerInstalls:
		if !strings.HasPrefix(v, "result:") {
			t.Fatalf("caller installed %q", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("caller did not install its response")
	}
	select {
	case v := <-callerInstalls:
		t.Fatalf("caller received a push %q", v)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTransportCallError(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.app.setCallStatus(500)
	caller := startPeer(t, e, "/list", "", make(chan string, 4))
	waitConnections(t, e.hub, "room", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := caller.Invoke(ctx, nil, nil)
	var ce *transport.CallError
	if !errors.As(err, &ce) || !strings.Contains(ce.Message, "500") {
		t.Fatalf("err = %v", err)
	}
}
