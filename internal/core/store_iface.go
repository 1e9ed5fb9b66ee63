package core

import (
	"errors"

	"github.com/dkeye/Drop/internal/domain"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionFull      = errors.New("session full")
	ErrAlreadyInSession = errors.New("connection already in a session")
)

// SessionStore maps session ids to two-party membership.
// Pure data: no I/O, no transport handles.
type SessionStore interface {
	// Create opens a session owned by owner and returns its fresh id.
	// An owner already in a session gets ErrAlreadyInSession.
	Create(owner domain.ConnID) (domain.SessionID, error)
	// Join adds client as the second member. The store is unchanged on error.
	Join(id domain.SessionID, client domain.ConnID) error
	// Get returns a copy of the session.
	Get(id domain.SessionID) (domain.Session, bool)
	// Leave drops client from its session, deleting the session once empty.
	Leave(client domain.ConnID) (domain.SessionID, bool)
	// SessionOf reports which session client belongs to.
	SessionOf(client domain.ConnID) (domain.SessionID, bool)
	Count() int
}
