package domain

import (
	"bytes"
	"encoding/json"
)

// Relay event names. Shared by the relay and its clients.
const (
	EventStartSession     = "start-session"
	EventJoinSession      = "join-session"
	EventSessionCreated   = "session-created"
	EventSessionJoined    = "session-joined"
	EventNotFoundOrFull   = "session-notfound-or-full"
	EventInitiateOffer    = "initiate-offer"
	EventOffer            = "webrtc-offer"
	EventAnswer           = "webrtc-answer"
	EventICECandidate     = "ice-candidate"
	EventPeerDisconnected = "peer-disconnected"
	EventPing             = "ping"
	EventPong             = "pong"
	EventWhoAmI           = "whoami"
	EventError            = "error"
)

// Envelope is the union of every relay message. Negotiation payloads stay raw:
// the relay never looks inside them.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID SessionID       `json:"sessionId,omitempty"`
	PeerID    ConnID          `json:"peerId,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Error     string          `json:"error,omitempty"`
	// Ref names the request type an error answers.
	Ref string `json:"ref,omitempty"`
}

// ForwardField maps a negotiation event to the field carrying its payload.
func ForwardField(event string) (string, bool) {
	switch event {
	case EventOffer:
		return "offer", true
	case EventAnswer:
		return "answer", true
	case EventICECandidate:
		return "candidate", true
	}
	return "", false
}

// Payload returns the negotiation payload carried by e, if any.
func (e *Envelope) Payload() json.RawMessage {
	var raw json.RawMessage
	switch e.Type {
	case EventOffer:
		raw = e.Offer
	case EventAnswer:
		raw = e.Answer
	case EventICECandidate:
		raw = e.Candidate
	}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
