package broker

import (
	"encoding/json"
	"sync"
	"time"
)

// fakePeer is a Peer whose liveness can be toggled by the test.
type fakePeer struct {
	mu        sync.Mutex
	connected bool
	written   [][]byte
}

func newFakePeer() *fakePeer {
	return &fakePeer{connected: true}
}

func (p *fakePeer) WriteMessage(data []byte) error {
	p.mu.Lock()
	p.written = append(p.written, data)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePeer) disconnect() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

// sentEvent is one notification captured by fakeNotifier, decoded just far
// enough to inspect the type discriminator and common fields.
type sentEvent struct {
	To      string
	Type    string
	Payload map[string]interface{}
}

// fakeNotifier records every outbound notification for assertions.
type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *fakeNotifier) Send(id string, data []byte) error {
	var payload map[string]interface{}
	_ = json.Unmarshal(data, &payload)
	msgType, _ := payload["type"].(string)

	n.mu.Lock()
	n.events = append(n.events, sentEvent{To: id, Type: msgType, Payload: payload})
	n.mu.Unlock()
	return nil
}

// all returns a snapshot of the captured events.
func (n *fakeNotifier) all() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentEvent, len(n.events))
	copy(out, n.events)
	return out
}

// ofType returns the captured events sent to id with the given type.
func (n *fakeNotifier) ofType(id, msgType string) []sentEvent {
	var out []sentEvent
	for _, ev := range n.all() {
		if ev.To == id && ev.Type == msgType {
			out = append(out, ev)
		}
	}
	return out
}

// reset drops all captured events.
func (n *fakeNotifier) reset() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()
}

// waitingClient builds an active, live client parked in a pool.
func waitingClient(id string, p Profile) *Client {
	return &Client{
		ID:       id,
		Peer:     newFakePeer(),
		Profile:  p,
		JoinedAt: time.Now(),
		Active:   true,
	}
}

// newTestController builds a controller with fresh components, no call store,
// and a recording notifier.
func newTestController() (*Controller, *fakeNotifier) {
	notifier := &fakeNotifier{}
	c := NewController(NewRegistry(), NewPoolSet(), NewPairTable(), nil, notifier)
	return c, notifier
}

// connect registers a live fake peer under id and clears the connected
// greeting from the notifier log.
func connect(c *Controller, n *fakeNotifier, id string) *fakePeer {
	peer := newFakePeer()
	c.Connect(id, peer)
	n.reset()
	return peer
}
