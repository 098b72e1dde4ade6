package broker

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pairly/chat-app/internal/metrics"
	"github.com/pairly/chat-app/internal/protocol"
	"github.com/pairly/chat-app/internal/videocall"
)

// redisOpTimeout bounds each best-effort call-marker operation.
const redisOpTimeout = 3 * time.Second

// Notifier delivers an outbound message to a connection. The ws server
// implements it; tests substitute a fake so the controller can be exercised
// without a live transport.
type Notifier interface {
	Send(id string, data []byte) error
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(id string, data []byte) error

// Send implements Notifier.
func (f NotifierFunc) Send(id string, data []byte) error {
	return f(id, data)
}

// Controller orchestrates the full session lifecycle: registration and
// matching, relay authorization, skip and disconnect handling, and the
// notifications each of those produces.
//
// The controller mutex serializes every compound mutation of the pools, pair
// table, and timer map, so a wait timeout racing a concurrent match resolves
// to exactly one outcome: whichever side removes the waiting entry first.
type Controller struct {
	mu       sync.Mutex
	registry *Registry
	pools    *PoolSet
	pairs    *PairTable
	calls    *videocall.Store // may be nil; markers are best-effort
	notifier Notifier
	timers   map[string]*time.Timer
	waitFor  time.Duration
}

// NewController wires the broker components together. calls may be nil, in
// which case video call markers are skipped entirely.
func NewController(registry *Registry, pools *PoolSet, pairs *PairTable, calls *videocall.Store, notifier Notifier) *Controller {
	return &Controller{
		registry: registry,
		pools:    pools,
		pairs:    pairs,
		calls:    calls,
		notifier: notifier,
		timers:   make(map[string]*time.Timer),
		waitFor:  MatchTimeout,
	}
}

// Registry returns the connection registry, for the transport layer and the
// HTTP health handler.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// Connect registers a new transport connection and tells the client its ID.
func (c *Controller) Connect(id string, peer Peer) {
	c.registry.Register(id, peer)
	metrics.ConnectionsTotal.Set(float64(c.registry.Count()))
	c.send(id, protocol.TypeConnected, protocol.ConnectedMsg{ClientID: id})
}

// Disconnect handles a transport-level disconnect: all derived state is
// purged and the connection is removed from the registry.
func (c *Controller) Disconnect(id string) {
	c.Cleanup(id)
	c.registry.Remove(id)
	metrics.ConnectionsTotal.Set(float64(c.registry.Count()))
}

// Register accepts a (re-)submitted profile and either pairs the connection
// with a waiting partner or enqueues it with a bounded wait timer. Any prior
// wait or pairing for the connection is cleaned up first, so resubmission is
// always safe.
func (c *Controller) Register(id string, p Profile) {
	if !ValidMode(p.Mode) {
		log.Printf("broker: invalid mode %q from id=%s", p.Mode, id)
		c.send(id, protocol.TypeError, protocol.ErrorMsg{
			Code:    "invalid_mode",
			Message: "Invalid chat mode",
		})
		return
	}

	// Stale call markers from a previous pairing must be gone before a new
	// video match records its own.
	c.endCallMarkers(id)

	c.mu.Lock()
	formerPartner := c.cleanupLocked(id)

	client := c.registry.Get(id)
	if client == nil {
		c.mu.Unlock()
		log.Printf("broker: register for unknown connection id=%s", id)
		return
	}

	client.Profile = p
	client.JoinedAt = time.Now()
	client.Active = true

	pool := c.pools.Pool(p.Mode)
	match, tier := FindMatch(client, pool)

	if match != nil {
		pool.Remove(match.ID)
		c.cancelTimerLocked(match.ID)
		c.pairs.Pair(id, match.ID)
		c.mu.Unlock()

		metrics.MatchesTotal.WithLabelValues(tier.String()).Inc()
		metrics.MatchWaitSeconds.Observe(time.Since(match.JoinedAt).Seconds())
		log.Printf("broker: match found %s <-> %s mode=%s tier=%s", id, match.ID, p.Mode, tier)

		if p.Mode == ModeVideo {
			c.startCallMarker(id, match.ID)
		}

		c.send(id, protocol.TypeMatchFound, protocol.MatchFoundMsg{PartnerID: match.ID})
		c.send(match.ID, protocol.TypeMatchFound, protocol.MatchFoundMsg{PartnerID: id})
	} else {
		pool.Add(client)
		c.armTimerLocked(id, p.Mode)
		c.mu.Unlock()

		log.Printf("broker: id=%s waiting in %s pool (size=%d)", id, p.Mode, pool.Len())
	}

	c.notifyFormerPartner(formerPartner)
	c.updateGauges()
}

// RelayChat relays a text message to the sender's current partner. Empty
// messages are rejected, unauthorized targets are dropped silently, and a
// dead target is reported back to the sender.
func (c *Controller) RelayChat(from, to, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		metrics.RelayDroppedTotal.WithLabelValues("empty").Inc()
		return
	}

	if c.pairs.PartnerOf(from) != to {
		// Silent drop: the sender learns nothing about partner state.
		log.Printf("broker: unauthorized message from %s to %s", from, to)
		metrics.RelayDroppedTotal.WithLabelValues("unauthorized").Inc()
		return
	}

	if !c.registry.IsLive(to) {
		metrics.RelayDroppedTotal.WithLabelValues("dead_target").Inc()
		c.send(from, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{
			Message: "Your partner has disconnected",
		})
		return
	}

	metrics.RelayedTotal.WithLabelValues(protocol.TypeChatMessage).Inc()
	c.send(to, protocol.TypeChatMessage, protocol.ChatMessageMsg{Text: trimmed})
}

// RelaySignal relays an opaque WebRTC signaling payload to the sender's
// current partner. kind must be one of the protocol signaling types. The
// payload is never inspected beyond presence. Offers carry the sender ID so
// the callee knows whom to answer, and re-arm the call marker.
func (c *Controller) RelaySignal(from, to, kind string, payload json.RawMessage) {
	if len(payload) == 0 {
		metrics.RelayDroppedTotal.WithLabelValues("empty").Inc()
		return
	}

	if c.pairs.PartnerOf(from) != to {
		log.Printf("broker: unauthorized %s from %s to %s", kind, from, to)
		metrics.RelayDroppedTotal.WithLabelValues("unauthorized").Inc()
		return
	}

	if !c.registry.IsLive(to) {
		metrics.RelayDroppedTotal.WithLabelValues("dead_target").Inc()
		c.send(from, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{
			Message: "Your partner has disconnected",
		})
		return
	}

	out := protocol.ServerSignalMsg{Payload: payload}
	if kind == protocol.TypeVideoOffer {
		out.From = from
	}

	metrics.RelayedTotal.WithLabelValues(kind).Inc()
	c.send(to, kind, out)

	if kind == protocol.TypeVideoOffer {
		c.startCallMarker(from, to)
	}
}

// Skip drops the current pairing so both sides can look for someone else.
// The pair entries are removed unconditionally, even if partnerID is stale —
// best-effort semantics. The requester is always told to re-seek.
func (c *Controller) Skip(id, partnerID, mode string) {
	c.mu.Lock()
	actual := c.pairs.Unpair(id)
	c.pairs.Unpair(partnerID)
	c.mu.Unlock()

	if mode == ModeVideo {
		c.endCallMarkers(id)
	}

	if partnerID != "" && c.registry.IsLive(partnerID) {
		c.send(partnerID, protocol.TypeFindOther, protocol.FindOtherMsg{})
	}
	if actual != "" && actual != partnerID && c.registry.IsLive(actual) {
		c.send(actual, protocol.TypeFindOther, protocol.FindOtherMsg{})
	}
	c.send(id, protocol.TypeFindOther, protocol.FindOtherMsg{})

	c.updateGauges()
}

// EndSession handles an explicit leave-the-chat request (the requester's
// transport stays up). Video sessions get an end-of-call notification on both
// sides; text partners get a partner-left notice. Then the pairing is
// dissolved as in Skip.
func (c *Controller) EndSession(id, partnerID, mode string) {
	c.mu.Lock()
	actual := c.pairs.Unpair(id)
	c.pairs.Unpair(partnerID)
	c.mu.Unlock()

	partnerLive := partnerID != "" && c.registry.IsLive(partnerID)

	if mode == ModeVideo {
		c.endCallMarkers(id)
		c.send(id, protocol.TypeEndVideo, protocol.EndVideoMsg{})
		if partnerLive {
			c.send(partnerID, protocol.TypeEndVideo, protocol.EndVideoMsg{})
			c.send(partnerID, protocol.TypeFindOther, protocol.FindOtherMsg{})
		}
	} else {
		if partnerLive {
			c.send(partnerID, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{
				Message: "Partner disconnected.",
			})
			c.send(partnerID, protocol.TypeFindOther, protocol.FindOtherMsg{})
		}
	}

	if actual != "" && actual != partnerID && c.registry.IsLive(actual) {
		c.send(actual, protocol.TypeFindOther, protocol.FindOtherMsg{})
	}

	c.updateGauges()
}

// EndCall hangs up an in-progress video call. The requester leaves the video
// waiting pool if present, the pairing and call marker are cleared, and both
// sides are told to find another partner.
func (c *Controller) EndCall(id, partnerID string) {
	c.mu.Lock()
	if pool := c.pools.Pool(ModeVideo); pool != nil && pool.Remove(id) {
		c.cancelTimerLocked(id)
	}
	actual := c.pairs.Unpair(id)
	c.pairs.Unpair(partnerID)
	c.mu.Unlock()

	c.endCallMarkers(id)

	if partnerID != "" && c.registry.IsLive(partnerID) {
		c.send(partnerID, protocol.TypeEndVideo, protocol.EndVideoMsg{})
		c.send(partnerID, protocol.TypeFindOther, protocol.FindOtherMsg{})
	}
	if actual != "" && actual != partnerID && c.registry.IsLive(actual) {
		c.send(actual, protocol.TypeFindOther, protocol.FindOtherMsg{})
	}
	c.send(id, protocol.TypeFindOther, protocol.FindOtherMsg{})

	c.updateGauges()
}

// Cleanup purges every piece of derived state for id: wait timer, pool
// membership, pairing, and call markers. A live partner is notified of the
// unexpected disconnection. Safe to call when nothing exists (idempotent).
func (c *Controller) Cleanup(id string) {
	c.mu.Lock()
	partner := c.cleanupLocked(id)
	c.mu.Unlock()

	c.notifyFormerPartner(partner)
	c.endCallMarkers(id)
	c.updateGauges()
}

// cleanupLocked removes id's timer, pool entries, and pairing. It returns the
// former partner ID so the caller can notify it after releasing the lock.
// Caller must hold c.mu.
func (c *Controller) cleanupLocked(id string) string {
	c.cancelTimerLocked(id)
	c.pools.RemoveAll(id)
	return c.pairs.Unpair(id)
}

// notifyFormerPartner tells a live ex-partner that the other side went away
// and that it should look for a new match.
func (c *Controller) notifyFormerPartner(partner string) {
	if partner == "" || !c.registry.IsLive(partner) {
		return
	}
	c.send(partner, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{
		Message: "Partner disconnected unexpectedly.",
	})
	c.send(partner, protocol.TypeFindOther, protocol.FindOtherMsg{})
}

// armTimerLocked schedules the bounded wait timeout for a freshly enqueued
// connection, replacing any previous timer. Caller must hold c.mu.
func (c *Controller) armTimerLocked(id, mode string) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	c.timers[id] = time.AfterFunc(c.waitFor, func() {
		c.matchTimeout(id, mode)
	})
}

// cancelTimerLocked stops and forgets id's wait timer, if any. Caller must
// hold c.mu.
func (c *Controller) cancelTimerLocked(id string) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

// matchTimeout fires when a wait timer expires. Presence in the pool at fire
// time decides the outcome: if the entry was already taken by a match (or a
// cleanup), this is a no-op.
func (c *Controller) matchTimeout(id, mode string) {
	c.mu.Lock()
	delete(c.timers, id)
	pool := c.pools.Pool(mode)
	removed := pool != nil && pool.Remove(id)
	c.mu.Unlock()

	if !removed {
		return
	}

	metrics.MatchTimeoutsTotal.Inc()
	log.Printf("broker: match timeout for id=%s mode=%s", id, mode)
	c.send(id, protocol.TypeMatchTimeout, protocol.MatchTimeoutMsg{
		Message: "No match found, please try again",
	})
	c.updateGauges()
}

// startCallMarker records an active video call marker. Best-effort: failures
// are logged, never propagated, and the pair table stays authoritative.
func (c *Controller) startCallMarker(a, b string) {
	if c.calls == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.calls.Start(ctx, a, b); err != nil {
		log.Printf("broker: start call marker %s/%s: %v", a, b, err)
	}
}

// endCallMarkers clears any call marker referencing id in either position.
func (c *Controller) endCallMarkers(id string) {
	if c.calls == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.calls.EndAll(ctx, id); err != nil {
		log.Printf("broker: end call markers for %s: %v", id, err)
	}
}

// send builds a server message and delivers it through the notifier.
// Delivery errors are logged; the transport cleans up failed connections.
func (c *Controller) send(to, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("broker: build %s for %s: %v", msgType, to, err)
		return
	}
	if err := c.notifier.Send(to, data); err != nil {
		log.Printf("broker: send %s to %s: %v", msgType, to, err)
	}
}

// updateGauges refreshes the waiting-pool and pair gauges.
func (c *Controller) updateGauges() {
	for _, mode := range c.pools.Modes() {
		metrics.WaitingUsers.WithLabelValues(mode).Set(float64(c.pools.Waiting(mode)))
	}
	metrics.ActivePairs.Set(float64(c.pairs.Len() / 2))
}
