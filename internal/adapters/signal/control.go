package signal

import "github.com/dkeye/Drop/internal/domain"

func (ctl *SignalWSController) handlePing(
	conn *wsSignalConn,
) {
	ctl.sendJSON(conn, domain.Envelope{Type: domain.EventPong})
}

// handleWhoAmI tells a client its relay-assigned id and current session.
func (ctl *SignalWSController) handleWhoAmI(
	id domain.ConnID,
	conn *wsSignalConn,
) {
	resp := domain.Envelope{Type: domain.EventWhoAmI, PeerID: id}
	if sid, ok := ctl.Orch.Registry.SessionOf(id); ok {
		resp.SessionID = sid
	}
	ctl.sendJSON(conn, resp)
}
