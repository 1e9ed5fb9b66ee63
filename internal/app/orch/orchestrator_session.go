package orch

import (
	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinResult tells the adapter whom to wake up after a join.
type JoinResult struct {
	Session domain.Session
	// Initiator is set only when this join filled the session.
	Initiator core.ConnSession
}

func (o *Orchestrator) Connect(cs core.ConnSession, cancel func()) {
	o.Registry.Bind(cs, cancel)
}

func (o *Orchestrator) Start(cid domain.ConnID) (domain.SessionID, error) {
	cs, ok := o.Registry.Get(cid)
	if !ok {
		return "", ErrUnknownConn
	}
	sid, err := o.Store.Create(cid)
	if err != nil {
		return "", err
	}
	o.Groups.GetOrCreate(sid).AddMember(cs)
	o.Registry.SetSession(cid, sid)
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("session", string(sid)).Msg("session started")
	return sid, nil
}

func (o *Orchestrator) Join(cid domain.ConnID, sid domain.SessionID) (JoinResult, error) {
	cs, ok := o.Registry.Get(cid)
	if !ok {
		return JoinResult{}, ErrUnknownConn
	}
	if sid == "" {
		return JoinResult{}, ErrMissingSessionID
	}
	if err := o.Store.Join(sid, cid); err != nil {
		log.Info().Err(err).Str("module", "orch").Str("conn", string(cid)).Str("session", string(sid)).Msg("join refused")
		return JoinResult{}, err
	}
	o.Groups.GetOrCreate(sid).AddMember(cs)
	o.Registry.SetSession(cid, sid)

	res := JoinResult{}
	sess, ok := o.Store.Get(sid)
	if !ok {
		return res, nil
	}
	res.Session = sess
	if len(sess.Members) == domain.MaxSessionMembers {
		if peer, ok := sess.Peer(cid); ok {
			res.Initiator, _ = o.Registry.Get(peer)
		}
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("session", string(sid)).Int("members", len(sess.Members)).Msg("session joined")
	return res, nil
}

// OnDisconnect drops cid from the registry and its session. It returns the
// session left so the adapter can notify whoever remains.
func (o *Orchestrator) OnDisconnect(cid domain.ConnID) (domain.SessionID, bool) {
	o.Registry.Unbind(cid)
	sid, ok := o.Store.Leave(cid)
	if !ok {
		return "", false
	}
	if group, ok := o.Groups.Get(sid); ok {
		group.RemoveMember(cid)
	}
	if _, alive := o.Store.Get(sid); !alive {
		o.Groups.Stop(sid)
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("session", string(sid)).Msg("left session")
	return sid, true
}
