package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(gender, selected, interest string) Profile {
	return Profile{Gender: gender, SelectedGender: selected, Interest: interest}
}

func TestFindMatch_EmptyPool(t *testing.T) {
	req := waitingClient("req", profile(GenderMale, SelectedRandom, ""))
	match, tier := FindMatch(req, NewPool())
	assert.Nil(t, match)
	assert.Equal(t, TierNone, tier)
}

func TestFindMatch_PerfectBeatsEarlierAny(t *testing.T) {
	pool := NewPool()
	// Tier 3 only: no shared interest, and only the reverse preference holds.
	pool.Add(waitingClient("any", profile(GenderMale, SelectedRandom, "chess")))
	// Tier 1: shared interest, both preferences satisfied.
	pool.Add(waitingClient("perfect", profile(GenderFemale, SelectedRandom, "music")))

	req := waitingClient("req", profile(GenderMale, GenderFemale, "music"))
	match, tier := FindMatch(req, pool)

	require.NotNil(t, match)
	assert.Equal(t, "perfect", match.ID)
	assert.Equal(t, TierPerfect, tier)
}

func TestFindMatch_FirstPerfectWins(t *testing.T) {
	pool := NewPool()
	pool.Add(waitingClient("first", profile(GenderFemale, SelectedRandom, "music")))
	pool.Add(waitingClient("second", profile(GenderFemale, SelectedRandom, "music")))

	req := waitingClient("req", profile(GenderMale, SelectedRandom, "music"))
	match, tier := FindMatch(req, pool)

	require.NotNil(t, match)
	assert.Equal(t, "first", match.ID)
	assert.Equal(t, TierPerfect, tier)
}

func TestFindMatch_GoodFallback(t *testing.T) {
	pool := NewPool()
	// Interests match but the candidate wants a female partner: good, not perfect.
	pool.Add(waitingClient("good", profile(GenderMale, GenderFemale, "music")))

	req := waitingClient("req", profile(GenderMale, SelectedRandom, "music"))
	match, tier := FindMatch(req, pool)

	require.NotNil(t, match)
	assert.Equal(t, "good", match.ID)
	assert.Equal(t, TierGood, tier)
}

func TestFindMatch_InterestsCaseInsensitive(t *testing.T) {
	pool := NewPool()
	pool.Add(waitingClient("cand", profile(GenderFemale, SelectedRandom, "MUSIC")))

	req := waitingClient("req", profile(GenderMale, SelectedRandom, "music"))
	match, tier := FindMatch(req, pool)

	require.NotNil(t, match)
	assert.Equal(t, TierPerfect, tier)
}

func TestFindMatch_EmptyInterestsNeverMatch(t *testing.T) {
	pool := NewPool()
	pool.Add(waitingClient("cand", profile(GenderFemale, SelectedRandom, "")))

	// Both interests empty: gender-only tiers still apply, but interests
	// must not be treated as equal.
	req := waitingClient("req", profile(GenderMale, SelectedRandom, ""))
	match, tier := FindMatch(req, pool)

	require.NotNil(t, match)
	assert.Equal(t, TierGood, tier)
}

func TestFindMatch_NoPreferenceSatisfied(t *testing.T) {
	pool := NewPool()
	// Requester wants female, candidate is male; candidate wants female,
	// requester is male. Neither direction holds.
	pool.Add(waitingClient("cand", profile(GenderMale, GenderFemale, "")))

	req := waitingClient("req", profile(GenderMale, GenderFemale, ""))
	match, tier := FindMatch(req, pool)

	assert.Nil(t, match)
	assert.Equal(t, TierNone, tier)
}

func TestFindMatch_EvictsStaleCandidates(t *testing.T) {
	pool := NewPool()

	dead := waitingClient("dead", profile(GenderFemale, SelectedRandom, "music"))
	dead.Peer.(*fakePeer).disconnect()
	pool.Add(dead)

	inactive := waitingClient("inactive", profile(GenderFemale, SelectedRandom, "music"))
	inactive.Active = false
	pool.Add(inactive)

	pool.Add(waitingClient("alive", profile(GenderFemale, SelectedRandom, "music")))

	req := waitingClient("req", profile(GenderMale, SelectedRandom, "music"))
	match, _ := FindMatch(req, pool)

	require.NotNil(t, match)
	assert.Equal(t, "alive", match.ID)

	// Stale entries were evicted in passing; the winner stays in the pool
	// (the controller removes it after pairing).
	assert.False(t, pool.Contains("dead"))
	assert.False(t, pool.Contains("inactive"))
	assert.True(t, pool.Contains("alive"))
}

func TestFindMatch_SkipsOwnEntry(t *testing.T) {
	pool := NewPool()
	req := waitingClient("req", profile(GenderMale, SelectedRandom, "music"))
	pool.Add(req)

	match, tier := FindMatch(req, pool)

	assert.Nil(t, match)
	assert.Equal(t, TierNone, tier)
	// The requester's own future entry must not be evicted by its own scan.
	assert.True(t, pool.Contains("req"))
}
