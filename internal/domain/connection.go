// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxTokenLen = 36

var ErrTokenTooLong = errors.New("client token too long")

// ConnID identifies one live relay connection. Assigned by the relay, never by the client.
type ConnID string

// Connection is the per-socket record. It exists only for the socket lifetime.
type Connection struct {
	ID        ConnID    `json:"id"`
	Token     string    `json:"token,omitempty"`
	SessionID SessionID `json:"session_id,omitempty"`
}

// NewConnection is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewConnection(token string) (*Connection, error) {
	if len(token) > MaxTokenLen {
		return nil, ErrTokenTooLong
	}
	return &Connection{ID: ConnID(uuid.NewString()), Token: token}, nil
}

func (c *Connection) InSession() bool { return c.SessionID != "" }
