package orch

import (
	"errors"

	"github.com/dkeye/Drop/internal/app"
	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownConn      = errors.New("unknown connection")
	ErrMissingSessionID = errors.New("missing session id")
	ErrNotInSession     = errors.New("not a member of session")
)

// Orchestrator binds live connections to session lifecycle and fans
// relay frames out to session groups. It never encodes wire messages.
type Orchestrator struct {
	Registry *app.Registry
	Store    core.SessionStore
	Groups   core.GroupManager
	Policy   app.Policy
}

// Forward relays frame from cid to the other members of sid.
func (o *Orchestrator) Forward(cid domain.ConnID, sid domain.SessionID, frame core.Frame) error {
	if sid == "" {
		return ErrMissingSessionID
	}
	if current, ok := o.Store.SessionOf(cid); !ok || current != sid {
		return ErrNotInSession
	}
	group, ok := o.Groups.Get(sid)
	if !ok {
		return core.ErrSessionNotFound
	}
	o.publish(group, cid, frame)
	return nil
}

// Notify sends frame to a single member of sid.
func (o *Orchestrator) Notify(sid domain.SessionID, to domain.ConnID, frame core.Frame) error {
	group, ok := o.Groups.Get(sid)
	if !ok {
		return core.ErrSessionNotFound
	}
	err := group.SendTo(to, frame)
	if err != nil && !errors.Is(err, core.ErrNotMember) {
		if cs, ok := o.Registry.Get(to); ok {
			o.onBackpressure(group, cs)
		}
	}
	return err
}

// Publish sends frame to every member of sid except from.
func (o *Orchestrator) Publish(sid domain.SessionID, from domain.ConnID, frame core.Frame) {
	group, ok := o.Groups.Get(sid)
	if !ok {
		return
	}
	o.publish(group, from, frame)
}

func (o *Orchestrator) publish(group core.GroupService, from domain.ConnID, frame core.Frame) {
	res := group.Broadcast(from, frame)
	for _, slow := range res.Dropped {
		o.onBackpressure(group, slow)
	}
}

func (o *Orchestrator) onBackpressure(group core.GroupService, slow core.ConnSession) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(group, slow) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("conn", string(slow.Meta().ID)).Str("session", string(group.ID())).Msg("kicking slow member")
		o.Kick(slow.Meta().ID)
	case app.MarkSlow, app.DropFrame, app.NoAction:
	}
}

// Kick cancels the connection; its adapter then runs OnDisconnect.
func (o *Orchestrator) Kick(cid domain.ConnID) {
	o.Registry.Cancel(cid)
}
