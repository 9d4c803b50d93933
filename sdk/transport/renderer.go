package transport

import (
	"encoding/json"
	"io"
	"sync"
)

// Payload is what a Renderer extracts from a reconstructed stream.
type Payload struct {
	// View is the render output to install as the current view state.
	View any
	// Result is the value a remote call resolves with.
	Result any
}

// Renderer is the peer side of the render collaborator. It marshals call
// arguments, deserializes reconstructed streams and installs view state.
type Renderer interface {
	EncodeArgs(args []any) (string, error)
	Decode(r io.Reader) (Payload, error)
	Install(view any)
}

// RawRenderer treats every stream as opaque bytes: the whole body becomes
// both the view and the call result. Arguments are encoded as a JSON array.
type RawRenderer struct {
	// OnInstall, when set, is invoked after each install.
	OnInstall func(view []byte)

	mu      sync.RWMutex
	current []byte
}

func (r *RawRenderer) EncodeArgs(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *RawRenderer) Decode(rd io.Reader) (Payload, error) {
	b, err := io.ReadAll(rd)
	if err != nil {
		return Payload{}, err
	}
	return Payload{View: b, Result: b}, nil
}

func (r *RawRenderer) Install(view any) {
	b, ok := view.([]byte)
	if !ok {
		return
	}
	r.mu.Lock()
	r.current = b
	r.mu.Unlock()
	if r.OnInstall != nil {
		r.OnInstall(b)
	}
}

// Current returns the most recently installed view.
func (r *RawRenderer) Current() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}
