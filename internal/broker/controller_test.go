package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairly/chat-app/internal/protocol"
)

func textProfile(gender, selected, interest string) Profile {
	return Profile{Gender: gender, SelectedGender: selected, Interest: interest, Mode: ModeText}
}

func TestController_InvalidMode(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "x")

	c.Register("x", Profile{Mode: "smoke-signals"})

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, protocol.TypeError, events[0].Type)
	assert.Equal(t, "invalid_mode", events[0].Payload["code"])
	assert.False(t, c.pools.Pool(ModeText).Contains("x"))
	assert.False(t, c.pools.Pool(ModeVideo).Contains("x"))
}

func TestController_FirstRegistrantWaits(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "x")

	c.Register("x", textProfile(GenderMale, SelectedRandom, "music"))

	assert.True(t, c.pools.Pool(ModeText).Contains("x"))
	assert.Empty(t, notifier.all())
}

func TestController_TierOneScenario(t *testing.T) {
	// X(music, male, random) then Y(music, female, random): Y gets a perfect
	// match against X, both are paired, and the text pool drains.
	c, notifier := newTestController()
	connect(c, notifier, "x")
	connect(c, notifier, "y")

	c.Register("x", textProfile(GenderMale, SelectedRandom, "music"))
	c.Register("y", textProfile(GenderFemale, SelectedRandom, "music"))

	require.Len(t, notifier.ofType("x", protocol.TypeMatchFound), 1)
	require.Len(t, notifier.ofType("y", protocol.TypeMatchFound), 1)
	assert.Equal(t, "x", notifier.ofType("y", protocol.TypeMatchFound)[0].Payload["partner_id"])
	assert.Equal(t, "y", notifier.ofType("x", protocol.TypeMatchFound)[0].Payload["partner_id"])

	assert.Equal(t, "y", c.pairs.PartnerOf("x"))
	assert.Equal(t, "x", c.pairs.PartnerOf("y"))
	assert.Equal(t, 0, c.pools.Pool(ModeText).Len())
}

func TestController_MatchTimeout(t *testing.T) {
	// X wants a female partner while nobody is waiting: after the wait
	// window it gets match_timeout and is gone from the pool.
	c, notifier := newTestController()
	c.waitFor = 30 * time.Millisecond
	connect(c, notifier, "x")

	c.Register("x", textProfile(GenderMale, GenderFemale, ""))
	require.True(t, c.pools.Pool(ModeText).Contains("x"))

	require.Eventually(t, func() bool {
		return len(notifier.ofType("x", protocol.TypeMatchTimeout)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, c.pools.Pool(ModeText).Contains("x"))
}

func TestController_TimeoutAfterMatchIsNoOp(t *testing.T) {
	// The timer checks pool presence at fire time. Once a match removed the
	// entry, a firing timer must not produce a timeout event.
	c, notifier := newTestController()
	connect(c, notifier, "x")
	connect(c, notifier, "y")

	c.Register("x", textProfile(GenderMale, SelectedRandom, ""))
	c.Register("y", textProfile(GenderFemale, SelectedRandom, ""))
	require.Len(t, notifier.ofType("x", protocol.TypeMatchFound), 1)

	c.matchTimeout("x", ModeText)

	assert.Empty(t, notifier.ofType("x", protocol.TypeMatchTimeout))
	assert.Equal(t, "y", c.pairs.PartnerOf("x"))
}

func TestController_RelayChatAuthorized(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	c.RelayChat("a", "b", "  hello there  ")

	msgs := notifier.ofType("b", protocol.TypeChatMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Payload["text"])
}

func TestController_RelayChatUnauthorizedSilentDrop(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	connect(c, notifier, "eve")

	c.pairs.Pair("a", "b")
	c.RelayChat("eve", "b", "hi")
	c.RelayChat("a", "eve", "hi")

	// No delivery and, crucially, no error back to either sender.
	assert.Empty(t, notifier.all())
}

func TestController_RelayChatEmptyRejected(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	c.RelayChat("a", "b", "   \t\n ")

	assert.Empty(t, notifier.all())
}

func TestController_RelayChatDeadTarget(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	peerB := connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	peerB.disconnect()
	c.RelayChat("a", "b", "anyone there?")

	require.Len(t, notifier.ofType("a", protocol.TypePartnerDisconnected), 1)
	assert.Empty(t, notifier.ofType("b", protocol.TypeChatMessage))
}

func TestController_RelaySignalOfferCarriesSender(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	c.RelaySignal("a", "b", protocol.TypeVideoOffer, payload)
	c.RelaySignal("b", "a", protocol.TypeVideoAnswer, payload)

	offers := notifier.ofType("b", protocol.TypeVideoOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "a", offers[0].Payload["from"])

	answers := notifier.ofType("a", protocol.TypeVideoAnswer)
	require.Len(t, answers, 1)
	_, hasFrom := answers[0].Payload["from"]
	assert.False(t, hasFrom)
}

func TestController_RelaySignalEmptyPayloadRejected(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	c.RelaySignal("a", "b", protocol.TypeIceCandidate, nil)

	assert.Empty(t, notifier.all())
}

func TestController_Skip(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	c.Skip("a", "b", ModeText)

	assert.Equal(t, "", c.pairs.PartnerOf("a"))
	assert.Equal(t, "", c.pairs.PartnerOf("b"))
	require.Len(t, notifier.ofType("b", protocol.TypeFindOther), 1)
	require.Len(t, notifier.ofType("a", protocol.TypeFindOther), 1)
}

func TestController_SkipWithoutPartnerStillNotifiesRequester(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")

	c.Skip("a", "", ModeText)

	require.Len(t, notifier.ofType("a", protocol.TypeFindOther), 1)
}

func TestController_SkipWithStalePartnerClaim(t *testing.T) {
	// The pair entries go away even when the claimed partner is stale, and
	// the real partner is told to re-seek.
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	connect(c, notifier, "stale")
	c.pairs.Pair("a", "b")

	c.Skip("a", "stale", ModeText)

	assert.Equal(t, "", c.pairs.PartnerOf("a"))
	assert.Equal(t, "", c.pairs.PartnerOf("b"))
	require.Len(t, notifier.ofType("b", protocol.TypeFindOther), 1)
}

func TestController_EndSessionText(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	c.EndSession("a", "b", ModeText)

	assert.Equal(t, "", c.pairs.PartnerOf("a"))
	require.Len(t, notifier.ofType("b", protocol.TypePartnerDisconnected), 1)
	require.Len(t, notifier.ofType("b", protocol.TypeFindOther), 1)
	// The requester left deliberately; it is not told to re-seek.
	assert.Empty(t, notifier.ofType("a", protocol.TypeFindOther))
}

func TestController_EndSessionVideo(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	c.EndSession("a", "b", ModeVideo)

	require.Len(t, notifier.ofType("a", protocol.TypeEndVideo), 1)
	require.Len(t, notifier.ofType("b", protocol.TypeEndVideo), 1)
	require.Len(t, notifier.ofType("b", protocol.TypeFindOther), 1)
}

func TestController_EndCall(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	c.EndCall("a", "b")

	assert.Equal(t, "", c.pairs.PartnerOf("a"))
	require.Len(t, notifier.ofType("b", protocol.TypeEndVideo), 1)
	require.Len(t, notifier.ofType("b", protocol.TypeFindOther), 1)
	require.Len(t, notifier.ofType("a", protocol.TypeFindOther), 1)
}

func TestController_CleanupNotifiesPartner(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")
	c.pools.Pool(ModeText).Add(waitingClient("a", Profile{}))

	c.Cleanup("a")

	assert.False(t, c.pools.Pool(ModeText).Contains("a"))
	assert.Equal(t, "", c.pairs.PartnerOf("a"))
	require.Len(t, notifier.ofType("b", protocol.TypePartnerDisconnected), 1)
	require.Len(t, notifier.ofType("b", protocol.TypeFindOther), 1)
}

func TestController_CleanupIdempotent(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")
	c.pairs.Pair("a", "b")

	c.Cleanup("a")
	eventsAfterFirst := len(notifier.all())
	c.Cleanup("a")

	// Second cleanup finds nothing: same final state, no extra notifications.
	assert.Len(t, notifier.all(), eventsAfterFirst)
	assert.Equal(t, "", c.pairs.PartnerOf("a"))
	assert.Equal(t, "", c.pairs.PartnerOf("b"))
}

func TestController_DisconnectRemovesRegistration(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")

	c.Disconnect("a")

	assert.Nil(t, c.registry.Get("a"))
	assert.False(t, c.registry.IsLive("a"))
}

func TestController_ResubmissionBreaksExistingPair(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")
	connect(c, notifier, "b")

	c.Register("a", textProfile(GenderMale, SelectedRandom, ""))
	c.Register("b", textProfile(GenderFemale, SelectedRandom, ""))
	require.Equal(t, "b", c.pairs.PartnerOf("a"))
	notifier.reset()

	// a starts over; b must be told its partner is gone.
	c.Register("a", textProfile(GenderMale, SelectedRandom, "hiking"))

	assert.Equal(t, "", c.pairs.PartnerOf("b"))
	require.Len(t, notifier.ofType("b", protocol.TypePartnerDisconnected), 1)
	require.Len(t, notifier.ofType("b", protocol.TypeFindOther), 1)
	assert.True(t, c.pools.Pool(ModeText).Contains("a"))
}

func TestController_PoolExclusivityAcrossModes(t *testing.T) {
	c, notifier := newTestController()
	connect(c, notifier, "a")

	c.Register("a", textProfile(GenderMale, GenderFemale, ""))
	require.True(t, c.pools.Pool(ModeText).Contains("a"))

	c.Register("a", Profile{Gender: GenderMale, SelectedGender: GenderFemale, Mode: ModeVideo})

	assert.False(t, c.pools.Pool(ModeText).Contains("a"))
	assert.True(t, c.pools.Pool(ModeVideo).Contains("a"))
}
