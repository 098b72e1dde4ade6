// Package broker implements the connection broker at the heart of the chat
// service: waiting pools of users looking for a partner, the tiered matching
// algorithm, the symmetric pair table that authorizes message relay, the
// session controller that drives the whole lifecycle, and the periodic
// reconciler that sweeps out stale state.
package broker

import (
	"time"
)

// Chat modes. Each mode has its own waiting pool.
const (
	ModeText  = "text"
	ModeVideo = "video"
)

// Gender and gender-preference values carried in a Profile. SelectedRandom
// means "no preference".
const (
	GenderMale        = "male"
	GenderFemale      = "female"
	GenderUnspecified = "unspecified"
	SelectedRandom    = "random"
)

// Broker timing constants.
const (
	// MatchTimeout is how long a connection waits in a pool before it is
	// removed and notified that no match was found.
	MatchTimeout = 30 * time.Second

	// RetentionWindow is the maximum age of a waiting-pool entry before the
	// reconciler evicts it, regardless of liveness. Catches entries whose
	// wait timer was lost (e.g. process hiccups).
	RetentionWindow = 3 * time.Minute

	// ReconcileInterval is the period of the reconciliation sweep.
	ReconcileInterval = 30 * time.Second
)

// ValidMode reports whether mode names a recognized chat mode.
func ValidMode(mode string) bool {
	return mode == ModeText || mode == ModeVideo
}

// Peer is the transport-side handle for a connection. The ws package's
// Connection satisfies it; tests substitute fakes.
type Peer interface {
	// WriteMessage sends one message frame to the client.
	WriteMessage(data []byte) error
	// Connected reports whether the underlying transport link is still up.
	Connected() bool
}

// Profile holds the matching preferences a client submits. It is stored on
// the Client and re-submitted wholesale each time the user restarts matching.
type Profile struct {
	Gender         string
	SelectedGender string
	Interest       string
	DisplayName    string
	Mode           string
}

// Client is the broker's view of one live connection. The Registry is the
// sole owner of Client objects; pools and the pair table only hold
// references, never copies, so liveness changes are visible everywhere.
type Client struct {
	ID       string
	Peer     Peer
	Profile  Profile
	JoinedAt time.Time // when preferences were last (re-)submitted
	Active   bool      // preferences accepted, eligible for matching
}

// Live reports whether the client's transport link is still connected.
func (c *Client) Live() bool {
	return c != nil && c.Peer != nil && c.Peer.Connected()
}
