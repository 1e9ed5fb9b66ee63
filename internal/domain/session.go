package domain

import "github.com/google/uuid"

// MaxSessionMembers is the pairing size: one initiator, one joiner.
const MaxSessionMembers = 2

type SessionID string

// Session is a two-party pairing. Members keeps join order, so Members[0] is the initiator.
type Session struct {
	ID      SessionID `json:"id"`
	Members []ConnID  `json:"members"`
}

// NewSessionID returns a random v4 UUID (122 bits of entropy).
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

func (s Session) Full() bool { return len(s.Members) >= MaxSessionMembers }

func (s Session) Has(id ConnID) bool {
	for _, m := range s.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Peer returns the other member, if any.
func (s Session) Peer(id ConnID) (ConnID, bool) {
	for _, m := range s.Members {
		if m != id {
			return m, true
		}
	}
	return "", false
}
