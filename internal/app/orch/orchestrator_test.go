package orch

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Drop/internal/app"
	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	full     bool
	canceled bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("queue full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, string(f))
	}
	return out
}

func newOrch() *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Store:    core.NewSessionStore(),
		Groups:   app.NewGroupManager(),
		Policy:   app.SimplePolicy{},
	}
}

func connect(o *Orchestrator, id domain.ConnID) *fakeConn {
	fc := &fakeConn{}
	cs := core.NewConnSession(&domain.Connection{ID: id}, fc)
	o.Connect(cs, func() {
		fc.mu.Lock()
		fc.canceled = true
		fc.mu.Unlock()
	})
	return fc
}

func TestStartJoinInitiates(t *testing.T) {
	o := newOrch()
	connect(o, "x")
	connect(o, "y")

	sid, err := o.Start("x")
	require.NoError(t, err)

	res, err := o.Join("y", sid)
	require.NoError(t, err)
	require.NotNil(t, res.Initiator)
	assert.Equal(t, domain.ConnID("x"), res.Initiator.Meta().ID)
	assert.Equal(t, []domain.ConnID{"x", "y"}, res.Session.Members)

	got, ok := o.Registry.SessionOf("y")
	require.True(t, ok)
	assert.Equal(t, sid, got)
}

func TestJoinUnknownSessionCreatesNothing(t *testing.T) {
	o := newOrch()
	connect(o, "z")

	_, err := o.Join("z", "zzz")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.Equal(t, 0, o.Store.Count())
	_, ok := o.Groups.Get("zzz")
	assert.False(t, ok)
	_, ok = o.Registry.SessionOf("z")
	assert.False(t, ok)
}

func TestThirdJoinRefused(t *testing.T) {
	o := newOrch()
	for _, id := range []domain.ConnID{"a", "b", "c"} {
		connect(o, id)
	}
	sid, _ := o.Start("a")
	_, err := o.Join("b", sid)
	require.NoError(t, err)

	_, err = o.Join("c", sid)
	assert.ErrorIs(t, err, core.ErrSessionFull)
}

func TestStartTwiceRefused(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	_, err := o.Start("a")
	require.NoError(t, err)

	_, err = o.Start("a")
	assert.ErrorIs(t, err, core.ErrAlreadyInSession)
	assert.Equal(t, 1, o.Store.Count())
}

func TestUnknownConnection(t *testing.T) {
	o := newOrch()
	_, err := o.Start("ghost")
	assert.ErrorIs(t, err, ErrUnknownConn)
}

func TestForwardReachesPeerOnly(t *testing.T) {
	o := newOrch()
	x := connect(o, "x")
	y := connect(o, "y")
	sid, _ := o.Start("x")
	_, err := o.Join("y", sid)
	require.NoError(t, err)

	require.NoError(t, o.Forward("x", sid, core.Frame("one")))
	require.NoError(t, o.Forward("x", sid, core.Frame("two")))

	assert.Empty(t, x.got())
	assert.Equal(t, []string{"one", "two"}, y.got())
}

func TestForwardRejections(t *testing.T) {
	o := newOrch()
	connect(o, "x")
	connect(o, "outsider")
	sid, _ := o.Start("x")

	assert.ErrorIs(t, o.Forward("x", "", core.Frame("f")), ErrMissingSessionID)
	assert.ErrorIs(t, o.Forward("outsider", sid, core.Frame("f")), ErrNotInSession)
	assert.ErrorIs(t, o.Forward("x", "other", core.Frame("f")), ErrNotInSession)
}

func TestDisconnectLifecycle(t *testing.T) {
	o := newOrch()
	connect(o, "x")
	connect(o, "y")
	sid, _ := o.Start("x")
	_, err := o.Join("y", sid)
	require.NoError(t, err)

	left, ok := o.OnDisconnect("y")
	require.True(t, ok)
	assert.Equal(t, sid, left)
	sess, alive := o.Store.Get(sid)
	require.True(t, alive)
	assert.Equal(t, []domain.ConnID{"x"}, sess.Members)
	g, ok := o.Groups.Get(sid)
	require.True(t, ok)
	assert.Equal(t, 1, g.MemberCount())

	_, ok = o.OnDisconnect("x")
	require.True(t, ok)
	_, alive = o.Store.Get(sid)
	assert.False(t, alive)
	_, ok = o.Groups.Get(sid)
	assert.False(t, ok)
	assert.Equal(t, 0, o.Registry.Count())

	_, ok = o.OnDisconnect("never-joined")
	assert.False(t, ok)
}

func TestBackpressureKicksSlowMember(t *testing.T) {
	o := newOrch()
	connect(o, "x")
	y := connect(o, "y")
	sid, _ := o.Start("x")
	_, err := o.Join("y", sid)
	require.NoError(t, err)

	y.mu.Lock()
	y.full = true
	y.mu.Unlock()

	require.NoError(t, o.Forward("x", sid, core.Frame("offer")))

	y.mu.Lock()
	defer y.mu.Unlock()
	assert.True(t, y.canceled)
}
