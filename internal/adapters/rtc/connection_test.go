package rtc

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Drop/internal/transfer"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackConfig() Config {
	return Config{IncludeLoopback: true, Channel: DefaultChannelOptions()}
}

// connectPair negotiates two local peers directly, trickling candidates.
func connectPair(t *testing.T) (offerer, answerer *DataChannel) {
	t.Helper()
	a, err := NewPeerConnection(loopbackConfig())
	require.NoError(t, err)
	b, err := NewPeerConnection(loopbackConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	a.OnICECandidate(func(ci webrtc.ICECandidateInit) { _ = b.AddICECandidate(ci) })
	b.OnICECandidate(func(ci webrtc.ICECandidateInit) { _ = a.AddICECandidate(ci) })

	remote := make(chan *DataChannel, 1)
	b.OnDataChannel(func(ch *DataChannel) { remote <- ch })

	offer, local, err := a.CreateOffer()
	require.NoError(t, err)
	answer, err := b.AcceptOffer(offer)
	require.NoError(t, err)
	require.NoError(t, a.ApplyAnswer(answer))

	var theirs *DataChannel
	select {
	case theirs = <-remote:
	case <-time.After(10 * time.Second):
		t.Fatal("remote data channel not announced")
	}
	for _, ch := range []*DataChannel{local, theirs} {
		select {
		case <-ch.Opened():
		case <-time.After(10 * time.Second):
			t.Fatal("data channel did not open")
		}
	}
	return local, theirs
}

func TestLoopbackFileTransfer(t *testing.T) {
	local, remote := connectPair(t)

	data := bytes.Repeat([]byte("drop"), 20000)
	done := make(chan transfer.Received, 1)
	sent := make(chan string, 1)

	var receiver *transfer.Controller
	receiver = transfer.NewController(remote, transfer.Events{
		OnRequest:  func(transfer.Request) { _ = receiver.Accept() },
		OnComplete: func(r transfer.Received) { done <- r },
	}, transfer.Options{})
	remote.Bind(receiver)

	sender := transfer.NewController(local, transfer.Events{
		OnSent: func(name string) { sent <- name },
	}, transfer.Options{})
	local.Bind(sender)

	require.NoError(t, sender.Select(transfer.NewFileFromBytes("blob.bin", data)))
	require.NoError(t, sender.RequestSend())

	select {
	case r := <-done:
		assert.Equal(t, "blob.bin", r.Name)
		assert.Equal(t, data, r.Data)
	case <-time.After(20 * time.Second):
		t.Fatal("file not received")
	}
	assert.Equal(t, "blob.bin", <-sent)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	pc, err := NewPeerConnection(loopbackConfig())
	require.NoError(t, err)
	defer pc.Close()

	require.NoError(t, pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 5000 typ host"}))
	assert.Equal(t, 1, pc.PendingCandidates())
}

func TestClosedFiresOnce(t *testing.T) {
	pc, err := NewPeerConnection(loopbackConfig())
	require.NoError(t, err)
	var calls atomic.Int32
	pc.OnClosed(func() { calls.Add(1) })
	pc.Close()
	pc.Close()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
