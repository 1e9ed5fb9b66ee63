package app

import (
	"sync"

	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
)

type GroupManagerImpl struct {
	mu     sync.RWMutex
	groups map[domain.SessionID]core.GroupService
}

func NewGroupManager() core.GroupManager {
	return &GroupManagerImpl{groups: make(map[domain.SessionID]core.GroupService)}
}

func (f *GroupManagerImpl) GetOrCreate(id domain.SessionID) core.GroupService {
	f.mu.RLock()
	g, ok := f.groups[id]
	f.mu.RUnlock()
	if ok {
		return g
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok = f.groups[id]; ok {
		return g
	}
	g = core.NewGroupService(id)
	f.groups[id] = g
	return g
}

func (f *GroupManagerImpl) Get(id domain.SessionID) (core.GroupService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	g, ok := f.groups[id]
	return g, ok
}

func (f *GroupManagerImpl) Stop(id domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, id)
}
