package broker

import (
	"container/list"
	"sync"
)

// Pool is one mode's waiting list. It preserves insertion order — the matcher
// scans oldest-first — and supports O(1) removal by ID.
type Pool struct {
	mu    sync.Mutex
	order *list.List               // of *Client, oldest at the front
	index map[string]*list.Element // client ID -> element in order
}

// NewPool creates an empty waiting pool.
func NewPool() *Pool {
	return &Pool{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Add inserts a client at the back of the pool. If the ID is already present
// the old entry is removed first, so re-adding moves the client to the back.
func (p *Pool) Add(c *Client) {
	p.mu.Lock()
	if el, ok := p.index[c.ID]; ok {
		p.order.Remove(el)
	}
	p.index[c.ID] = p.order.PushBack(c)
	p.mu.Unlock()
}

// Remove deletes the entry for id and reports whether it was present. This
// "remove if present" is the single source of truth when a wait timeout races
// a concurrent match: whichever caller removes the entry wins.
func (p *Pool) Remove(id string) bool {
	p.mu.Lock()
	el, ok := p.index[id]
	if ok {
		p.order.Remove(el)
		delete(p.index, id)
	}
	p.mu.Unlock()
	return ok
}

// Contains reports whether id is currently waiting in this pool.
func (p *Pool) Contains(id string) bool {
	p.mu.Lock()
	_, ok := p.index[id]
	p.mu.Unlock()
	return ok
}

// Len returns the number of waiting clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	n := len(p.index)
	p.mu.Unlock()
	return n
}

// Snapshot returns the waiting clients in insertion order. The slice is safe
// to iterate while the pool is mutated (entries may be evicted mid-scan).
func (p *Pool) Snapshot() []*Client {
	p.mu.Lock()
	out := make([]*Client, 0, p.order.Len())
	for el := p.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Client))
	}
	p.mu.Unlock()
	return out
}

// PoolSet holds one waiting pool per chat mode. A connection ID may be in at
// most one pool at a time; RemoveAll enforces that before any insertion.
type PoolSet struct {
	pools map[string]*Pool
}

// NewPoolSet creates a PoolSet with one pool for each recognized mode.
func NewPoolSet() *PoolSet {
	return &PoolSet{
		pools: map[string]*Pool{
			ModeText:  NewPool(),
			ModeVideo: NewPool(),
		},
	}
}

// Pool returns the pool for the given mode, or nil for an unknown mode.
func (ps *PoolSet) Pool(mode string) *Pool {
	return ps.pools[mode]
}

// Modes returns the modes in a fixed order, for deterministic sweeps.
func (ps *PoolSet) Modes() []string {
	return []string{ModeText, ModeVideo}
}

// RemoveAll removes id from every mode's pool and reports whether it was
// waiting anywhere.
func (ps *PoolSet) RemoveAll(id string) bool {
	removed := false
	for _, mode := range ps.Modes() {
		if ps.pools[mode].Remove(id) {
			removed = true
		}
	}
	return removed
}

// Waiting returns the number of clients waiting in the given mode.
func (ps *PoolSet) Waiting(mode string) int {
	if p := ps.pools[mode]; p != nil {
		return p.Len()
	}
	return 0
}
