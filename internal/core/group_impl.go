package core

import (
	"errors"
	"sync"

	"github.com/dkeye/Drop/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotMember = errors.New("not a group member")

// groupImpl is a threadsafe in-memory broadcast group.
// It never closes adapter-owned resources.
type groupImpl struct {
	id     domain.SessionID
	mu     sync.RWMutex
	byConn map[domain.ConnID]ConnSession
}

func NewGroupService(id domain.SessionID) GroupService {
	return &groupImpl{
		id:     id,
		byConn: make(map[domain.ConnID]ConnSession),
	}
}

func (g *groupImpl) ID() domain.SessionID { return g.id }

func (g *groupImpl) MemberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byConn)
}

func (g *groupImpl) AddMember(cs ConnSession) {
	id := cs.Meta().ID
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byConn[id] = cs
	log.Debug().Str("module", "core.group").Str("session", string(g.id)).Str("conn", string(id)).Msg("member added")
}

func (g *groupImpl) RemoveMember(id domain.ConnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byConn, id)
	log.Debug().Str("module", "core.group").Str("session", string(g.id)).Str("conn", string(id)).Msg("member removed")
}

func (g *groupImpl) Broadcast(from domain.ConnID, data Frame) PublishResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := PublishResult{}
	for id, m := range g.byConn {
		if id == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.group").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (g *groupImpl) SendTo(to domain.ConnID, data Frame) error {
	g.mu.RLock()
	m, ok := g.byConn[to]
	g.mu.RUnlock()
	if !ok {
		return ErrNotMember
	}
	return m.Signal().TrySend(data)
}
