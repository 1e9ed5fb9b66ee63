package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Drop/internal/domain"
)

type recordingConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (c *recordingConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordingConn) Close() {}

func (c *recordingConn) got() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func member(id domain.ConnID, c *recordingConn) ConnSession {
	return NewConnSession(&domain.Connection{ID: id}, c)
}

func TestBroadcastSkipsSender(t *testing.T) {
	g := NewGroupService("s1")
	a, b := &recordingConn{}, &recordingConn{}
	g.AddMember(member("a", a))
	g.AddMember(member("b", b))

	res := g.Broadcast("a", Frame("hello"))

	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, res.Dropped)
	assert.Empty(t, a.got())
	assert.Equal(t, []Frame{Frame("hello")}, b.got())
}

func TestBroadcastReportsDropped(t *testing.T) {
	g := NewGroupService("s1")
	slow := &recordingConn{full: true}
	g.AddMember(member("a", &recordingConn{}))
	g.AddMember(member("b", slow))

	res := g.Broadcast("a", Frame("x"))

	assert.Equal(t, 0, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, domain.ConnID("b"), res.Dropped[0].Meta().ID)
}

func TestSendToAndRemove(t *testing.T) {
	g := NewGroupService("s1")
	a := &recordingConn{}
	g.AddMember(member("a", a))

	require.NoError(t, g.SendTo("a", Frame("direct")))
	assert.Equal(t, []Frame{Frame("direct")}, a.got())

	g.RemoveMember("a")
	assert.Equal(t, 0, g.MemberCount())
	assert.ErrorIs(t, g.SendTo("a", Frame("late")), ErrNotMember)
}
