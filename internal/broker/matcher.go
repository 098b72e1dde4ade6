package broker

import (
	"log"
	"strings"
)

// Tier classifies match quality. The matcher short-circuits on the first
// perfect candidate and otherwise falls back to the earliest good or any
// candidate seen during the scan.
type Tier int

const (
	TierNone Tier = iota
	TierAny       // at least one side's gender preference is satisfied
	TierGood      // interests match, or both gender preferences are satisfied
	TierPerfect   // interests match and both gender preferences are satisfied
)

// String returns the tier name used in logs and metric labels.
func (t Tier) String() string {
	switch t {
	case TierPerfect:
		return "perfect"
	case TierGood:
		return "good"
	case TierAny:
		return "any"
	default:
		return "none"
	}
}

// interestsMatch reports whether both sides declared a non-empty interest and
// they are equal case-insensitively.
func interestsMatch(a, b Profile) bool {
	return a.Interest != "" && b.Interest != "" && strings.EqualFold(a.Interest, b.Interest)
}

// genderOK reports whether the candidate's gender satisfies the requester's
// preference. A preference of random accepts anyone.
func genderOK(requester, candidate Profile) bool {
	return requester.SelectedGender == SelectedRandom || candidate.Gender == requester.SelectedGender
}

// FindMatch scans the pool once in insertion order and returns the best
// compatible waiting client for the requester, with the tier it matched at,
// or (nil, TierNone) if no candidate qualifies.
//
// Candidates that are inactive or whose transport has dropped are evicted
// from the pool as the scan passes them (lazy cleanup). The requester's own
// entry, if present, is skipped and left untouched.
//
// The first perfect candidate ends the scan immediately; good and any
// candidates are remembered at first occurrence only, so the result favors
// mutual-preference satisfaction over recency while keeping the worst case
// at one full pass.
func FindMatch(requester *Client, pool *Pool) (*Client, Tier) {
	var good, any *Client

	for _, candidate := range pool.Snapshot() {
		if candidate.ID == requester.ID {
			continue
		}

		if !candidate.Active || !candidate.Live() {
			log.Printf("broker: evicting stale waiting entry id=%s", candidate.ID)
			pool.Remove(candidate.ID)
			continue
		}

		interests := interestsMatch(requester.Profile, candidate.Profile)
		forward := genderOK(requester.Profile, candidate.Profile)
		reverse := genderOK(candidate.Profile, requester.Profile)

		if interests && forward && reverse {
			return candidate, TierPerfect
		}
		if good == nil && (interests || (forward && reverse)) {
			good = candidate
		}
		if any == nil && (forward || reverse) {
			any = candidate
		}
	}

	if good != nil {
		return good, TierGood
	}
	if any != nil {
		return any, TierAny
	}
	return nil, TierNone
}
