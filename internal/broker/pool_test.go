package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_InsertionOrderPreserved(t *testing.T) {
	pool := NewPool()
	pool.Add(waitingClient("a", Profile{}))
	pool.Add(waitingClient("b", Profile{}))
	pool.Add(waitingClient("c", Profile{}))

	snap := pool.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, "c", snap[2].ID)
}

func TestPool_RemoveIfPresent(t *testing.T) {
	pool := NewPool()
	pool.Add(waitingClient("a", Profile{}))

	// First removal wins, second is a no-op. This is the property the
	// timeout/match race relies on.
	assert.True(t, pool.Remove("a"))
	assert.False(t, pool.Remove("a"))
	assert.False(t, pool.Contains("a"))
	assert.Equal(t, 0, pool.Len())
}

func TestPool_ReAddMovesToBack(t *testing.T) {
	pool := NewPool()
	a := waitingClient("a", Profile{})
	pool.Add(a)
	pool.Add(waitingClient("b", Profile{}))
	pool.Add(a)

	snap := pool.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].ID)
	assert.Equal(t, "a", snap[1].ID)
}

func TestPoolSet_RemoveAllEnforcesExclusivity(t *testing.T) {
	ps := NewPoolSet()
	ps.Pool(ModeText).Add(waitingClient("a", Profile{Mode: ModeText}))
	ps.Pool(ModeVideo).Add(waitingClient("a", Profile{Mode: ModeVideo}))

	assert.True(t, ps.RemoveAll("a"))
	for _, mode := range ps.Modes() {
		assert.False(t, ps.Pool(mode).Contains("a"), "still present in %s pool", mode)
	}
	assert.False(t, ps.RemoveAll("a"))
}

func TestPoolSet_UnknownMode(t *testing.T) {
	ps := NewPoolSet()
	assert.Nil(t, ps.Pool("carrier-pigeon"))
	assert.Equal(t, 0, ps.Waiting("carrier-pigeon"))
}
