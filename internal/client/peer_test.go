package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/dkeye/Drop/internal/adapters/http"
	"github.com/dkeye/Drop/internal/adapters/rtc"
	"github.com/dkeye/Drop/internal/app"
	"github.com/dkeye/Drop/internal/app/orch"
	"github.com/dkeye/Drop/internal/config"
	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/dkeye/Drop/internal/transfer"
)

func startRelay(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &config.Config{
		Mode:       "test",
		Port:       8080,
		ReadLimit:  32768,
		PingPeriod: 5 * time.Second,
		PongWait:   10 * time.Second,
		SendQueue:  64,
		Secret:     "test-secret",
	}
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Store:    core.NewSessionStore(),
		Groups:   app.NewGroupManager(),
		Policy:   app.SimplePolicy{},
	}
	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, o))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

func dialPeer(t *testing.T, url string) *Peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sig, err := Dial(ctx, url)
	require.NoError(t, err)
	p := NewPeer(sig, rtc.Config{IncludeLoopback: true, Channel: rtc.DefaultChannelOptions()})
	t.Cleanup(p.Close)
	return p
}

func run(t *testing.T, p *Peer) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errs := make(chan error, 1)
	go func() { errs <- p.Run(ctx) }()
	return errs
}

func waitSession(t *testing.T, p *Peer) domain.SessionID {
	t.Helper()
	select {
	case id := <-p.Sessions():
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("no session")
	}
	return ""
}

func TestEndToEndTransferThroughRelay(t *testing.T) {
	url := startRelay(t)
	x := dialPeer(t, url)
	y := dialPeer(t, url)

	data := []byte(strings.Repeat("relay-", 9000))
	received := make(chan transfer.Received, 1)

	var xCtl *transfer.Controller
	x.OnChannel = func(ch *rtc.DataChannel) {
		xCtl = transfer.NewController(ch, transfer.Events{}, transfer.Options{})
		ch.Bind(xCtl)
	}
	var yCtl *transfer.Controller
	y.OnChannel = func(ch *rtc.DataChannel) {
		yCtl = transfer.NewController(ch, transfer.Events{
			OnRequest:  func(transfer.Request) { _ = yCtl.Accept() },
			OnComplete: func(r transfer.Received) { received <- r },
		}, transfer.Options{})
		ch.Bind(yCtl)
	}

	run(t, x)
	run(t, y)

	require.NoError(t, x.StartSession())
	id := waitSession(t, x)
	require.NotEmpty(t, id)
	require.NoError(t, y.JoinSession(id))
	assert.Equal(t, id, waitSession(t, y))

	select {
	case <-x.Ready():
	case <-time.After(15 * time.Second):
		t.Fatal("initiator channel not ready")
	}
	select {
	case <-y.Ready():
	case <-time.After(15 * time.Second):
		t.Fatal("joiner channel not ready")
	}

	require.NoError(t, xCtl.Select(transfer.NewFileFromBytes("notes.txt", data)))
	require.NoError(t, xCtl.RequestSend())

	select {
	case r := <-received:
		assert.Equal(t, "notes.txt", r.Name)
		assert.Equal(t, data, r.Data)
	case <-time.After(20 * time.Second):
		t.Fatal("file not received")
	}
}

func TestJoinUnknownSessionFails(t *testing.T) {
	url := startRelay(t)
	y := dialPeer(t, url)
	errs := run(t, y)

	require.NoError(t, y.JoinSession("zzz"))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrSessionUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("join not refused")
	}
}

func TestPeerLeavingEndsRun(t *testing.T) {
	url := startRelay(t)
	x := dialPeer(t, url)
	y := dialPeer(t, url)
	xErrs := run(t, x)
	run(t, y)

	require.NoError(t, x.StartSession())
	id := waitSession(t, x)
	require.NoError(t, y.JoinSession(id))
	waitSession(t, y)

	y.Close()
	select {
	case err := <-xErrs:
		assert.ErrorIs(t, err, ErrPeerDisconnected)
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect not reported")
	}
}

func TestWhoAmI(t *testing.T) {
	url := startRelay(t)
	x := dialPeer(t, url)
	run(t, x)

	require.NoError(t, x.WhoAmI())
	require.Eventually(t, func() bool { return x.Self() != "" }, 5*time.Second, 10*time.Millisecond)
}

func TestCandidateBeforeOfferIsKept(t *testing.T) {
	y := dialPeer(t, startRelay(t))

	offerer, err := rtc.NewPeerConnection(rtc.Config{IncludeLoopback: true, Channel: rtc.DefaultChannelOptions()})
	require.NoError(t, err)
	t.Cleanup(offerer.Close)
	offer, _, err := offerer.CreateOffer()
	require.NoError(t, err)

	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 127.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	require.NoError(t, y.handle(domain.Envelope{Type: domain.EventICECandidate, Candidate: cand}))

	y.mu.Lock()
	pc := y.pc
	y.mu.Unlock()
	require.NotNil(t, pc)
	assert.Equal(t, 1, pc.PendingCandidates())

	raw, err := json.Marshal(offer)
	require.NoError(t, err)
	require.NoError(t, y.handle(domain.Envelope{Type: domain.EventOffer, Offer: raw}))
	assert.Equal(t, 0, pc.PendingCandidates())
}
