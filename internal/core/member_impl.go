package core

import "github.com/dkeye/Drop/internal/domain"

// ConnSession binds domain.Connection and its transport endpoint.
// This is what a group stores and fans out to.
type ConnSession interface {
	Meta() *domain.Connection
	Signal() SignalConnection
}

// connSession implements ConnSession by pairing meta + transport.
type connSession struct {
	meta   *domain.Connection
	signal SignalConnection
}

func NewConnSession(meta *domain.Connection, signal SignalConnection) ConnSession {
	return &connSession{meta: meta, signal: signal}
}

func (c *connSession) Meta() *domain.Connection { return c.meta }
func (c *connSession) Signal() SignalConnection { return c.signal }
