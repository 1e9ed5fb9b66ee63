package app

import (
	"context"
	"sync"

	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Session core.ConnSession
	Cancel  context.CancelFunc
}

// Registry is the arena of live relay connections, keyed by connection id.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*connEntry),
	}
}

func (r *Registry) Bind(cs core.ConnSession, cancel context.CancelFunc) {
	id := cs.Meta().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Session: cs, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound connection")
}

func (r *Registry) Get(id domain.ConnID) (core.ConnSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbind connection")
}

// SessionOf returns the session recorded on the connection.
func (r *Registry) SessionOf(id domain.ConnID) (domain.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || !e.Session.Meta().InSession() {
		return "", false
	}
	return e.Session.Meta().SessionID, true
}

func (r *Registry) SetSession(id domain.ConnID, sid domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Session.Meta().SessionID = sid
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("session", string(sid)).Msg("updated session")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel stops the connection's pumps; the adapter then runs the disconnect path.
func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}
