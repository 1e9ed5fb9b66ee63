package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ChannelLabel names the single data channel the offering side opens.
const ChannelLabel = "file-channel"

var ErrClosed = errors.New("peer connection closed")

type Config struct {
	STUNURLs []string
	// IncludeLoopback gathers 127.0.0.1 candidates, needed when both peers share a host.
	IncludeLoopback bool
	Channel         ChannelOptions
}

func DefaultConfig() Config {
	return Config{
		STUNURLs: []string{"stun:stun.l.google.com:19302"},
		Channel:  DefaultChannelOptions(),
	}
}

func (c Config) webrtcConfig() webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(c.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNURLs})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// PeerConnection wraps one pion connection and the data channel it carries.
type PeerConnection struct {
	pc  *webrtc.PeerConnection
	cfg Config

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	onICE     func(webrtc.ICECandidateInit)
	onChannel func(*DataChannel)
	onClosed  func()
	closed    bool
}

func NewPeerConnection(cfg Config) (*PeerConnection, error) {
	se := webrtc.SettingEngine{}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(cfg.webrtcConfig())
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := &PeerConnection{pc: pc, cfg: cfg}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.fireClosed()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			log.Warn().Str("module", "webrtc").Str("label", dc.Label()).Msg("ignoring unknown data channel")
			return
		}
		ch := newDataChannel(dc, cfg.Channel)
		c.mu.Lock()
		fn := c.onChannel
		c.mu.Unlock()
		if fn != nil {
			fn(ch)
		}
	})

	return c, nil
}

// OnICECandidate sets the callback for locally gathered candidates.
func (c *PeerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnDataChannel sets the callback for the channel opened by the remote side.
func (c *PeerConnection) OnDataChannel(fn func(*DataChannel)) {
	c.mu.Lock()
	c.onChannel = fn
	c.mu.Unlock()
}

// OnClosed sets the callback fired once when the connection fails or closes.
func (c *PeerConnection) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

// CreateOffer opens the file channel and returns the local offer.
func (c *PeerConnection) CreateOffer() (webrtc.SessionDescription, *DataChannel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return webrtc.SessionDescription{}, nil, fmt.Errorf("create data channel: %w", err)
	}
	ch := newDataChannel(dc, c.cfg.Channel)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, nil, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, nil, fmt.Errorf("set local offer: %w", err)
	}
	return offer, ch, nil
}

// AcceptOffer applies the remote offer and returns the local answer.
func (c *PeerConnection) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.setRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return answer, nil
}

// ApplyAnswer completes negotiation on the offering side.
func (c *PeerConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.setRemote(answer)
}

// AddICECandidate applies a remote candidate, holding it until the remote
// description is known.
func (c *PeerConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if !c.remoteSet {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(ci)
}

// PendingCandidates is the number of remote candidates waiting for a remote description.
func (c *PeerConnection) PendingCandidates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *PeerConnection) setRemote(sd webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote %s: %w", sd.Type, err)
	}
	c.mu.Lock()
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ci := range pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			log.Warn().Str("module", "webrtc").Err(err).Msg("buffered candidate rejected")
		}
	}
	return nil
}

func (c *PeerConnection) fireClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClosed
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *PeerConnection) Close() {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Msg("closed")
	}
	c.fireClosed()
}
