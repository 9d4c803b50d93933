package coordinator

import (
	"context"
	"sort"
	"sync"

	"github.com/redwoodjs/sdk-sub000/server/internal/recordstore"
)

// Group is the registry for one broadcast group. All mutations hold mu, so
// operations on one group run one at a time while groups stay independent.
type Group struct {
	key string

	mu      sync.Mutex
	members map[string]*conn
	records map[string]recordstore.Record
	retired bool
}

func newGroup(key string) *Group {
	return &Group{key: key, members: make(map[string]*conn), records: make(map[string]recordstore.Record)}
}

// admit persists rec and registers c under its client id. A connection
// already registered under that id is returned so the caller can close it.
// ok is false when the group was retired and a fresh one must be used.
func (g *Group) admit(ctx context.Context, store recordstore.Store, c *conn, rec recordstore.Record) (replaced *conn, ok bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retired {
		return nil, false, nil
	}
	if err := store.Put(ctx, g.key, rec); err != nil {
		return nil, true, err
	}
	replaced = g.members[rec.ClientID]
	g.members[rec.ClientID] = c
	g.records[rec.ClientID] = rec
	return replaced, true, nil
}

// remove unregisters c and deletes its record. It reports false when c was
// already replaced by a newer connection with the same client id.
func (g *Group) remove(ctx context.Context, store recordstore.Store, c *conn) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.members[c.clientID] != c {
		return false, nil
	}
	delete(g.members, c.clientID)
	delete(g.records, c.clientID)
	return true, store.Delete(ctx, g.key, c.clientID)
}

// lookup returns the record for clientID from the cache, falling back to
// the durable store.
func (g *Group) lookup(ctx context.Context, store recordstore.Store, clientID string) (recordstore.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookupLocked(ctx, store, clientID)
}

func (g *Group) lookupLocked(ctx context.Context, store recordstore.Store, clientID string) (recordstore.Record, error) {
	if rec, ok := g.records[clientID]; ok {
		return rec, nil
	}
	rec, err := store.Get(ctx, g.key, clientID)
	if err != nil {
		return recordstore.Record{}, err
	}
	g.records[clientID] = rec
	return rec, nil
}

type member struct {
	conn *conn
	rec  recordstore.Record
}

// others snapshots every member except the given client id together with
// its own record. Members whose record cannot be found are skipped.
func (g *Group) others(ctx context.Context, store recordstore.Store, except string) ([]member, []error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]member, 0, len(g.members))
	var errs []error
	for id, c := range g.members {
		if id == except {
			continue
		}
		rec, err := g.lookupLocked(ctx, store, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, member{conn: c, rec: rec})
	}
	return out, errs
}

func (g *Group) conns() []*conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*conn, 0, len(g.members))
	for _, c := range g.members {
		out = append(out, c)
	}
	return out
}

func (g *Group) clientIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// retireIfEmpty marks an empty group as retired so late admissions move to
// a fresh group. Callers hold the hub lock.
func (g *Group) retireIfEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.members) > 0 {
		return false
	}
	g.retired = true
	return true
}
