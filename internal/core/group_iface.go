package core

import "github.com/dkeye/Drop/internal/domain"

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnSession
}

// GroupService is the broadcast group of one session.
// It owns the fan-out set but never touches transport resources.
type GroupService interface {
	ID() domain.SessionID
	MemberCount() int

	AddMember(cs ConnSession)
	RemoveMember(id domain.ConnID)
	// Broadcast sends data to every member except from.
	Broadcast(from domain.ConnID, data Frame) PublishResult
	// SendTo sends data to a single member.
	SendTo(to domain.ConnID, data Frame) error
}

type GroupManager interface {
	GetOrCreate(id domain.SessionID) GroupService
	Get(id domain.SessionID) (GroupService, bool)
	Stop(id domain.SessionID)
}
