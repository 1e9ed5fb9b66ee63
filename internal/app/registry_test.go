package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	meta, err := domain.NewConnection("tok")
	require.NoError(t, err)
	canceled := false
	r.Bind(core.NewConnSession(meta, nopConn{}), func() { canceled = true })

	got, ok := r.Get(meta.ID)
	require.True(t, ok)
	assert.Equal(t, meta, got.Meta())
	assert.Equal(t, 1, r.Count())

	_, ok = r.SessionOf(meta.ID)
	assert.False(t, ok)
	assert.True(t, r.SetSession(meta.ID, "s1"))
	sid, ok := r.SessionOf(meta.ID)
	assert.True(t, ok)
	assert.Equal(t, domain.SessionID("s1"), sid)

	assert.True(t, r.Cancel(meta.ID))
	assert.True(t, canceled)

	r.Unbind(meta.ID)
	assert.Equal(t, 0, r.Count())
	assert.False(t, r.SetSession(meta.ID, "s2"))
	assert.False(t, r.Cancel(meta.ID))
}

func TestSimplePolicyKicks(t *testing.T) {
	assert.Equal(t, KickMember, SimplePolicy{}.OnBackPressure(nil, nil))
}
