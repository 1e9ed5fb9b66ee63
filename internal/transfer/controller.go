package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ChunkSize is the size of every binary message except the last of a file.
const ChunkSize = 16384

var (
	ErrBusy             = errors.New("transfer in progress")
	ErrNoFile           = errors.New("no file selected")
	ErrChannelClosed    = errors.New("channel is not open")
	ErrWrongState       = errors.New("operation not valid in current state")
	ErrSizeOverrun      = errors.New("received more bytes than announced")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrTransferStalled  = errors.New("transfer stalled")
	ErrShortSource      = errors.New("source ended before announced size")
	ErrBadFile          = errors.New("file needs a name and a source")
)

type State int

const (
	Idle State = iota
	RequestSent
	AwaitingConsent
	Sending
	Receiving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestSent:
		return "request-sent"
	case AwaitingConsent:
		return "awaiting-consent"
	case Sending:
		return "sending"
	case Receiving:
		return "receiving"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Channel is an ordered, reliable peer link carrying text and binary messages.
type Channel interface {
	SendText(string) error
	SendBinary([]byte) error
	IsOpen() bool
}

// Events are the host notifications. OnRequest, OnProgress, OnComplete,
// OnSent, OnRejected and OnFailed run after the controller lock is released
// and may call back into the Controller. OnSendProgress runs inside the send
// loop and must not.
type Events struct {
	OnRequest      func(Request)
	OnProgress     func(received, total uint64)
	OnSendProgress func(sent, total uint64)
	OnComplete     func(Received)
	OnSent         func(name string)
	OnRejected     func(name string)
	OnFailed       func(error)
}

type Options struct {
	ChunkSize int
	// StallTimeout aborts a receive when no chunk arrives in time. Zero disables it.
	StallTimeout time.Duration
}

// Controller is one peer's side of the transfer protocol. Every event is
// handled to completion, chunk loop included, before the next one.
type Controller struct {
	mu   sync.Mutex
	ch   Channel
	ev   Events
	opts Options

	state   State
	pending *File
	inbound *Request

	chunks   [][]byte
	received uint64

	stall    *time.Timer
	stallGen uint64
}

func NewController(ch Channel, ev Events, opts Options) *Controller {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = ChunkSize
	}
	return &Controller{ch: ch, ev: ev, opts: opts}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress reports bytes received and announced size of the current inbound file.
func (c *Controller) Progress() (received, total uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inbound == nil {
		return 0, 0
	}
	return c.received, c.inbound.Size
}

// Pending returns the announced inbound request while it awaits a decision.
func (c *Controller) Pending() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != AwaitingConsent || c.inbound == nil {
		return Request{}, false
	}
	return *c.inbound, true
}

// Select records the outbound file. It does not contact the peer.
func (c *Controller) Select(f File) error {
	if f.Name == "" || (f.Source == nil && f.Size > 0) {
		return ErrBadFile
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle || c.pending != nil {
		return ErrBusy
	}
	c.pending = &f
	return nil
}

// RequestSend announces the selected file to the peer.
func (c *Controller) RequestSend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoFile
	}
	if c.state != Idle {
		return ErrBusy
	}
	if !c.ch.IsOpen() {
		return ErrChannelClosed
	}
	msg, err := encodeRequest(Request{Name: c.pending.Name, Size: c.pending.Size, Checksum: c.pending.Checksum})
	if err != nil {
		return err
	}
	if err := c.ch.SendText(msg); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	c.state = RequestSent
	log.Info().Str("module", "transfer").Str("name", c.pending.Name).Uint64("size", c.pending.Size).Msg("file requested")
	return nil
}

// Accept consents to the pending inbound file.
func (c *Controller) Accept() error {
	var fx effects
	defer fx.run()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != AwaitingConsent {
		return ErrWrongState
	}
	if !c.ch.IsOpen() {
		return ErrChannelClosed
	}
	if err := c.ch.SendText(encodeControl(typeFileAccept)); err != nil {
		return fmt.Errorf("send accept: %w", err)
	}
	c.state = Receiving
	c.received = 0
	c.chunks = nil
	log.Info().Str("module", "transfer").Str("name", c.inbound.Name).Uint64("size", c.inbound.Size).Msg("file accepted")
	if c.inbound.Size == 0 {
		c.completeLocked(&fx)
		return nil
	}
	c.armStallLocked()
	return nil
}

// Reject declines the pending inbound file.
func (c *Controller) Reject() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != AwaitingConsent {
		return ErrWrongState
	}
	if !c.ch.IsOpen() {
		return ErrChannelClosed
	}
	if err := c.ch.SendText(encodeControl(typeFileReject)); err != nil {
		return fmt.Errorf("send reject: %w", err)
	}
	log.Info().Str("module", "transfer").Str("name", c.inbound.Name).Msg("file rejected")
	c.inbound = nil
	c.state = Idle
	return nil
}

// HandleText processes a control message from the peer.
func (c *Controller) HandleText(data string) {
	var fx effects
	defer fx.run()

	msg, err := decodeControl(data)
	if err != nil {
		log.Warn().Str("module", "transfer").Err(err).Msg("discarding control message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case typeFileRequest:
		if c.state != Idle {
			log.Warn().Str("module", "transfer").Str("state", c.state.String()).Str("name", msg.Name).
				Msg("file request while busy, discarded")
			return
		}
		req := msg.request()
		c.inbound = &req
		c.state = AwaitingConsent
		if cb := c.ev.OnRequest; cb != nil {
			fx.add(func() { cb(req) })
		}
	case typeFileAccept:
		if c.state != RequestSent {
			log.Warn().Str("module", "transfer").Str("state", c.state.String()).Msg("unexpected file accept")
			return
		}
		c.sendLocked(&fx)
	case typeFileReject:
		if c.state != RequestSent {
			log.Warn().Str("module", "transfer").Str("state", c.state.String()).Msg("unexpected file reject")
			return
		}
		name := c.pending.Name
		c.pending = nil
		c.state = Idle
		log.Info().Str("module", "transfer").Str("name", name).Msg("peer rejected file")
		if cb := c.ev.OnRejected; cb != nil {
			fx.add(func() { cb(name) })
		}
	}
}

// HandleBinary processes a file chunk from the peer.
func (c *Controller) HandleBinary(data []byte) {
	var fx effects
	defer fx.run()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Receiving {
		log.Warn().Str("module", "transfer").Str("state", c.state.String()).Int("len", len(data)).
			Msg("unsolicited chunk discarded")
		return
	}
	total := c.inbound.Size
	if c.received+uint64(len(data)) > total {
		c.failLocked(&fx, ErrSizeOverrun)
		return
	}
	c.chunks = append(c.chunks, bytes.Clone(data))
	c.received += uint64(len(data))
	received := c.received
	if cb := c.ev.OnProgress; cb != nil {
		fx.add(func() { cb(received, total) })
	}
	if c.received == total {
		c.completeLocked(&fx)
		return
	}
	c.armStallLocked()
}

// HandleClose aborts any transfer in progress when the channel closes.
func (c *Controller) HandleClose() {
	var fx effects
	defer fx.run()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return
	}
	c.failLocked(&fx, ErrChannelClosed)
}

func (c *Controller) sendLocked(fx *effects) {
	f := c.pending
	c.state = Sending
	log.Info().Str("module", "transfer").Str("name", f.Name).Uint64("size", f.Size).Msg("sending file")

	var sent uint64
	for sent < f.Size {
		n := uint64(c.opts.ChunkSize)
		if rest := f.Size - sent; rest < n {
			n = rest
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(f.Source, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrShortSource
			}
			c.failLocked(fx, err)
			return
		}
		if !c.ch.IsOpen() {
			c.failLocked(fx, ErrChannelClosed)
			return
		}
		if err := c.ch.SendBinary(buf); err != nil {
			c.failLocked(fx, fmt.Errorf("send chunk: %w", err))
			return
		}
		sent += n
		if cb := c.ev.OnSendProgress; cb != nil {
			cb(sent, f.Size)
		}
	}

	name := f.Name
	c.pending = nil
	c.state = Idle
	log.Info().Str("module", "transfer").Str("name", name).Uint64("bytes", sent).Msg("file sent")
	if cb := c.ev.OnSent; cb != nil {
		fx.add(func() { cb(name) })
	}
}

func (c *Controller) completeLocked(fx *effects) {
	req := *c.inbound
	data := bytes.Join(c.chunks, nil)
	if data == nil {
		data = []byte{}
	}
	if req.Checksum != "" && Checksum(data) != req.Checksum {
		c.failLocked(fx, ErrChecksumMismatch)
		return
	}
	c.resetInboundLocked()
	c.state = Idle
	log.Info().Str("module", "transfer").Str("name", req.Name).Uint64("size", req.Size).Msg("file received")
	if cb := c.ev.OnComplete; cb != nil {
		fx.add(func() { cb(Received{Request: req, Data: data}) })
	}
}

func (c *Controller) failLocked(fx *effects, err error) {
	log.Error().Str("module", "transfer").Str("state", c.state.String()).Err(err).Msg("transfer aborted")
	if c.state == RequestSent || c.state == Sending {
		c.pending = nil
	}
	c.resetInboundLocked()
	c.state = Idle
	if cb := c.ev.OnFailed; cb != nil {
		fx.add(func() { cb(err) })
	}
}

func (c *Controller) resetInboundLocked() {
	c.inbound = nil
	c.chunks = nil
	c.received = 0
	c.stopStallLocked()
}

func (c *Controller) armStallLocked() {
	if c.opts.StallTimeout <= 0 {
		return
	}
	c.stopStallLocked()
	gen := c.stallGen
	c.stall = time.AfterFunc(c.opts.StallTimeout, func() { c.onStall(gen) })
}

func (c *Controller) stopStallLocked() {
	c.stallGen++
	if c.stall != nil {
		c.stall.Stop()
		c.stall = nil
	}
}

func (c *Controller) onStall(gen uint64) {
	var fx effects
	defer fx.run()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.stallGen || c.state != Receiving {
		return
	}
	c.failLocked(&fx, ErrTransferStalled)
}

// effects are host callbacks deferred until the controller lock is released.
type effects []func()

func (e *effects) add(f func()) { *e = append(*e, f) }

func (e *effects) run() {
	for _, f := range *e {
		f()
	}
}
