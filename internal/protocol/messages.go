// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeSubmitPreferences = "submit_preferences"
	TypeSendMessage       = "send_message"
	TypeVideoOffer        = "video_offer"
	TypeVideoAnswer       = "video_answer"
	TypeIceCandidate      = "ice_candidate"
	TypeSkip              = "skip"
	TypeEndChat           = "end_chat"
	TypeEndCall           = "end_call"
	TypePing              = "ping"
)

// Server -> Client message types.
const (
	TypeConnected           = "connected"
	TypeMatchFound          = "match_found"
	TypeMatchTimeout        = "match_timeout"
	TypeChatMessage         = "chat_message"
	TypePartnerDisconnected = "partner_disconnected"
	TypeFindOther           = "find_other"
	TypeEndVideo            = "end_video"
	TypeError               = "error"
	TypePong                = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// SubmitPreferencesMsg is sent by the client to (re-)submit its profile and
// enter matching for the given mode. Resubmission restarts matching from
// scratch: any existing pairing or waiting-pool entry is cleaned up first.
type SubmitPreferencesMsg struct {
	Type           string `json:"type"`
	Gender         string `json:"gender"`          // male | female | unspecified
	SelectedGender string `json:"selected_gender"` // male | female | random
	Interest       string `json:"interest"`        // optional, free text
	DisplayName    string `json:"display_name"`
	Mode           string `json:"mode"` // text | video
}

// SendMessageMsg is a text message addressed to the sender's current partner.
type SendMessageMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
	To   string `json:"to"` // partner connection ID
}

// SignalMsg carries an opaque WebRTC signaling payload (offer, answer, or ICE
// candidate) addressed to the sender's current partner. The payload is never
// inspected beyond presence.
type SignalMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	To      string          `json:"to"`
}

// SkipMsg asks to drop the current pairing and look for someone else.
type SkipMsg struct {
	Type      string `json:"type"`
	PartnerID string `json:"partner_id"`
	Mode      string `json:"mode"`
}

// EndChatMsg is an explicit leave-the-chat request (as opposed to a transport
// disconnect). The requester stays connected.
type EndChatMsg struct {
	Type      string `json:"type"`
	PartnerID string `json:"partner_id"`
	Mode      string `json:"mode"`
}

// EndCallMsg hangs up an in-progress video call without leaving the server.
type EndCallMsg struct {
	Type      string `json:"type"`
	PartnerID string `json:"partner_id"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ConnectedMsg is sent by the server when a new connection is established,
// carrying the transport-assigned connection ID.
type ConnectedMsg struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}

// MatchFoundMsg is sent to both sides when a compatible partner is found.
type MatchFoundMsg struct {
	Type      string `json:"type"`
	PartnerID string `json:"partner_id"`
}

// MatchTimeoutMsg is sent when the waiting period elapsed without a match.
type MatchTimeoutMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatMessageMsg is a text message relayed from the partner.
type ChatMessageMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PartnerDisconnectedMsg tells the client its partner is gone.
type PartnerDisconnectedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FindOtherMsg instructs the client to seek a new partner.
type FindOtherMsg struct {
	Type string `json:"type"`
}

// EndVideoMsg tells the client to tear down the active video call.
type EndVideoMsg struct {
	Type string `json:"type"`
}

// ServerSignalMsg is a relayed signaling payload. From is populated only for
// offers, so the callee knows which connection to answer.
type ServerSignalMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	From    string          `json:"from,omitempty"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeSubmitPreferences:
		var m SubmitPreferencesMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeVideoOffer, TypeVideoAnswer, TypeIceCandidate:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSkip:
		var m SkipMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEndChat:
		var m EndChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEndCall:
		var m EndCallMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the Server*Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
