package signal

import (
	"encoding/json"

	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleForward relays an offer, answer or ICE candidate to the other
// member of the session. The payload is never decoded.
func (ctl *SignalWSController) handleForward(
	id domain.ConnID,
	conn *wsSignalConn,
	env *domain.Envelope,
) {
	field, _ := domain.ForwardField(env.Type)
	payload := env.Payload()
	if payload == nil {
		ctl.sendError(conn, env.Type, codeMissingPayload)
		return
	}
	if err := ctl.Orch.Forward(id, env.SessionID, forwardFrame(env.Type, field, payload)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("type", env.Type).Msg("forward refused")
		ctl.sendError(conn, env.Type, errorCode(err))
	}
}

// forwardFrame writes {"type":kind,"<field>":payload} with payload copied
// verbatim. encoding/json would compact and HTML-escape it.
func forwardFrame(kind, field string, payload json.RawMessage) core.Frame {
	buf := make([]byte, 0, len(kind)+len(field)+len(payload)+16)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","`...)
	buf = append(buf, field...)
	buf = append(buf, `":`...)
	buf = append(buf, payload...)
	buf = append(buf, '}')
	return buf
}

func encode(env domain.Envelope) (core.Frame, error) {
	return json.Marshal(env)
}
