package broker

import "sync"

// PairTable is the symmetric map of connection ID to current partner ID. It
// is the single source of truth for "who may this connection talk to": every
// relay is authorized against it.
//
// Invariant: the table never holds a dangling half. Whenever a->b is present,
// b->a is present too, and each ID has at most one partner.
type PairTable struct {
	mu       sync.RWMutex
	partners map[string]string
}

// NewPairTable creates an empty PairTable.
func NewPairTable() *PairTable {
	return &PairTable{partners: make(map[string]string)}
}

// Pair records a and b as partners in both directions. Any prior pairing of
// either ID is dissolved first, including the reverse entry held by the
// previous partner, so the symmetry invariant survives overwrites.
func (t *PairTable) Pair(a, b string) {
	t.mu.Lock()
	t.dropLocked(a)
	t.dropLocked(b)
	t.partners[a] = b
	t.partners[b] = a
	t.mu.Unlock()
}

// PartnerOf returns the current partner of id, or "" if id is unpaired.
func (t *PairTable) PartnerOf(id string) string {
	t.mu.RLock()
	p := t.partners[id]
	t.mu.RUnlock()
	return p
}

// Unpair removes the pairing for id and its partner together. It returns the
// removed partner ID, or "" if id was not paired.
func (t *PairTable) Unpair(id string) string {
	t.mu.Lock()
	p := t.dropLocked(id)
	t.mu.Unlock()
	return p
}

// dropLocked removes id's entry and its partner's reverse entry. Caller must
// hold the write lock.
func (t *PairTable) dropLocked(id string) string {
	p, ok := t.partners[id]
	if !ok {
		return ""
	}
	delete(t.partners, id)
	delete(t.partners, p)
	return p
}

// Len returns the number of entries (two per pair).
func (t *PairTable) Len() int {
	t.mu.RLock()
	n := len(t.partners)
	t.mu.RUnlock()
	return n
}

// Entries returns each pair once as a two-element [a, b] with a < b, for the
// reconciler's sweep.
func (t *PairTable) Entries() [][2]string {
	t.mu.RLock()
	out := make([][2]string, 0, len(t.partners)/2)
	for a, b := range t.partners {
		if a < b {
			out = append(out, [2]string{a, b})
		}
	}
	t.mu.RUnlock()
	return out
}
