package signal

import (
	"errors"
	"strings"

	"github.com/dkeye/Drop/internal/app/orch"
	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	codeBadPayload       = "bad_payload"
	codeUnknownType      = "unknown_type"
	codeMissingSessionID = "missing_session_id"
	codeMissingPayload   = "missing_payload"
	codeNotInSession     = "not_in_session"
	codeAlreadyInSession = "already_in_session"
	codeSessionNotFound  = "session_not_found"
	codeRateLimited      = "rate_limited"
	codeInternal         = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, orch.ErrMissingSessionID):
		return codeMissingSessionID
	case errors.Is(err, orch.ErrNotInSession):
		return codeNotInSession
	case errors.Is(err, core.ErrAlreadyInSession):
		return codeAlreadyInSession
	case errors.Is(err, core.ErrSessionNotFound):
		return codeSessionNotFound
	}
	return codeInternal
}

func (ctl *SignalWSController) handleStart(
	id domain.ConnID,
	conn *wsSignalConn,
) {
	sid, err := ctl.Orch.Start(id)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("start refused")
		ctl.sendError(conn, domain.EventStartSession, errorCode(err))
		return
	}
	ctl.sendJSON(conn, domain.Envelope{Type: domain.EventSessionCreated, SessionID: sid})
}

// handleJoin answers the joiner and, once the session is full, wakes the
// initiator with the joiner's id.
func (ctl *SignalWSController) handleJoin(
	id domain.ConnID,
	conn *wsSignalConn,
	env *domain.Envelope,
) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("join rate limited")
		ctl.sendError(conn, domain.EventJoinSession, codeRateLimited)
		return
	}
	sid := domain.SessionID(strings.TrimSpace(string(env.SessionID)))
	if sid == "" {
		ctl.sendError(conn, domain.EventJoinSession, codeMissingSessionID)
		return
	}

	res, err := ctl.Orch.Join(id, sid)
	switch {
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrSessionFull):
		ctl.sendJSON(conn, domain.Envelope{Type: domain.EventNotFoundOrFull, SessionID: sid})
		return
	case err != nil:
		ctl.sendError(conn, domain.EventJoinSession, errorCode(err))
		return
	}

	ctl.sendJSON(conn, domain.Envelope{Type: domain.EventSessionJoined, SessionID: sid})
	if res.Initiator == nil {
		return
	}
	frame, err := encode(domain.Envelope{Type: domain.EventInitiateOffer, PeerID: id})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode initiate")
		return
	}
	to := res.Initiator.Meta().ID
	if err := ctl.Orch.Notify(sid, to, frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(to)).Msg("initiate not delivered")
	}
}

func (ctl *SignalWSController) disconnect(id domain.ConnID) {
	if ctl.Limiter != nil {
		ctl.Limiter.Forget(id)
	}
	sid, ok := ctl.Orch.OnDisconnect(id)
	if !ok {
		return
	}
	frame, err := encode(domain.Envelope{Type: domain.EventPeerDisconnected, PeerID: id})
	if err != nil {
		return
	}
	ctl.Orch.Publish(sid, id, frame)
}
