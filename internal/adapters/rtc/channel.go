package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrSendTimeout = errors.New("data channel send buffer did not drain")

type ChannelOptions struct {
	// HighWater pauses binary sends while more than this many bytes are queued.
	HighWater uint64
	// LowWater resumes sending once the queue drains to this level.
	LowWater    uint64
	SendTimeout time.Duration
}

func DefaultChannelOptions() ChannelOptions {
	return ChannelOptions{
		HighWater:   1 << 20,
		LowWater:    256 << 10,
		SendTimeout: 30 * time.Second,
	}
}

// Handler receives data channel traffic.
type Handler interface {
	HandleText(string)
	HandleBinary([]byte)
	HandleClose()
}

// DataChannel is an ordered, reliable message channel with send backpressure.
type DataChannel struct {
	dc        *webrtc.DataChannel
	opts      ChannelOptions
	open      atomic.Bool
	handler   atomic.Pointer[Handler]
	drained   chan struct{}
	opened    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	openOnce  sync.Once
}

func newDataChannel(dc *webrtc.DataChannel, opts ChannelOptions) *DataChannel {
	if opts.HighWater == 0 {
		opts = DefaultChannelOptions()
	}
	ch := &DataChannel{
		dc:      dc,
		opts:    opts,
		drained: make(chan struct{}, 1),
		opened:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	dc.SetBufferedAmountLowThreshold(opts.LowWater)
	dc.OnBufferedAmountLow(func() {
		select {
		case ch.drained <- struct{}{}:
		default:
		}
	})
	dc.OnOpen(func() {
		ch.open.Store(true)
		ch.openOnce.Do(func() { close(ch.opened) })
		log.Info().Str("module", "webrtc").Str("label", dc.Label()).Msg("data channel open")
	})
	dc.OnClose(func() {
		ch.open.Store(false)
		ch.closeOnce.Do(func() { close(ch.done) })
		log.Info().Str("module", "webrtc").Str("label", dc.Label()).Msg("data channel closed")
		if h := ch.handler.Load(); h != nil {
			(*h).HandleClose()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		h := ch.handler.Load()
		if h == nil {
			log.Warn().Str("module", "webrtc").Int("len", len(msg.Data)).Msg("message before handler bound, dropped")
			return
		}
		if msg.IsString {
			(*h).HandleText(string(msg.Data))
		} else {
			(*h).HandleBinary(msg.Data)
		}
	})
	return ch
}

// Bind routes incoming messages and closure to h.
func (c *DataChannel) Bind(h Handler) { c.handler.Store(&h) }

// Opened is closed once the channel is usable.
func (c *DataChannel) Opened() <-chan struct{} { return c.opened }

// Done is closed once the channel has closed.
func (c *DataChannel) Done() <-chan struct{} { return c.done }

func (c *DataChannel) IsOpen() bool { return c.open.Load() }

func (c *DataChannel) SendText(s string) error {
	return c.dc.SendText(s)
}

// SendBinary blocks while the send buffer is above the high-water mark.
func (c *DataChannel) SendBinary(b []byte) error {
	if c.dc.BufferedAmount() > c.opts.HighWater {
		timer := time.NewTimer(c.opts.SendTimeout)
		defer timer.Stop()
		for c.dc.BufferedAmount() > c.opts.HighWater {
			select {
			case <-c.drained:
			case <-c.done:
				return ErrClosed
			case <-timer.C:
				return ErrSendTimeout
			}
		}
	}
	return c.dc.Send(b)
}

// Flush waits until every queued byte has been handed to the network.
func (c *DataChannel) Flush(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for c.dc.BufferedAmount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case <-ticker.C:
		}
	}
	return nil
}

func (c *DataChannel) Close() error { return c.dc.Close() }
