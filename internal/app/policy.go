package app

import "github.com/dkeye/Drop/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(group core.GroupService, member core.ConnSession) BackpressureAction
}

// SimplePolicy kicks a member whose send queue is full.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(group core.GroupService, member core.ConnSession) BackpressureAction {
	return KickMember
}
