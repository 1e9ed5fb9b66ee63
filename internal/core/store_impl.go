package core

import (
	"sync"

	"github.com/dkeye/Drop/internal/domain"
	"github.com/rs/zerolog/log"
)

// memoryStore keeps sessions in process memory; a restart drops them all.
// One mutex covers every mutation so a last free slot is handed out once.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
	byConn   map[domain.ConnID]domain.SessionID
	newID    func() domain.SessionID
}

func NewSessionStore() SessionStore {
	return newSessionStore(domain.NewSessionID)
}

func newSessionStore(newID func() domain.SessionID) *memoryStore {
	return &memoryStore{
		sessions: make(map[domain.SessionID]*domain.Session),
		byConn:   make(map[domain.ConnID]domain.SessionID),
		newID:    newID,
	}
}

func (s *memoryStore) Create(owner domain.ConnID) (domain.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.byConn[owner]; busy {
		return "", ErrAlreadyInSession
	}
	id := s.newID()
	for _, taken := s.sessions[id]; taken; _, taken = s.sessions[id] {
		id = s.newID()
	}
	s.sessions[id] = &domain.Session{ID: id, Members: []domain.ConnID{owner}}
	s.byConn[owner] = id
	log.Info().Str("module", "core.store").Str("session", string(id)).Str("conn", string(owner)).Msg("session created")
	return id, nil
}

func (s *memoryStore) Join(id domain.SessionID, client domain.ConnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if _, busy := s.byConn[client]; busy {
		return ErrAlreadyInSession
	}
	if sess.Full() {
		return ErrSessionFull
	}
	sess.Members = append(sess.Members, client)
	s.byConn[client] = id
	log.Info().Str("module", "core.store").Str("session", string(id)).Str("conn", string(client)).Int("members", len(sess.Members)).Msg("session joined")
	return nil
}

func (s *memoryStore) Get(id domain.SessionID) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return copySession(sess), true
}

func (s *memoryStore) Leave(client domain.ConnID) (domain.SessionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byConn[client]
	if !ok {
		return "", false
	}
	s.removeLocked(id, client)
	return id, true
}

func (s *memoryStore) SessionOf(client domain.ConnID) (domain.SessionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byConn[client]
	return id, ok
}

func (s *memoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *memoryStore) removeLocked(id domain.SessionID, client domain.ConnID) {
	delete(s.byConn, client)
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	kept := sess.Members[:0]
	for _, m := range sess.Members {
		if m != client {
			kept = append(kept, m)
		}
	}
	sess.Members = kept
	if len(kept) == 0 {
		delete(s.sessions, id)
		log.Info().Str("module", "core.store").Str("session", string(id)).Msg("session removed")
		return
	}
	log.Info().Str("module", "core.store").Str("session", string(id)).Str("conn", string(client)).Int("members", len(kept)).Msg("session left")
}

func copySession(s *domain.Session) domain.Session {
	members := make([]domain.ConnID, len(s.Members))
	copy(members, s.Members)
	return domain.Session{ID: s.ID, Members: members}
}
