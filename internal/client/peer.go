package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Drop/internal/adapters/rtc"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionUnavailable = errors.New("session not found or full")
	ErrPeerDisconnected   = errors.New("peer disconnected")
)

// Peer drives one side of a session: it answers relay events with WebRTC
// negotiation until the file channel is up.
type Peer struct {
	sig *SignalClient
	cfg rtc.Config

	// OnChannel runs before the channel can deliver messages. Bind here.
	OnChannel func(*rtc.DataChannel)

	mu        sync.Mutex
	sessionID domain.SessionID
	self      domain.ConnID
	pc        *rtc.PeerConnection

	sessions chan domain.SessionID
	ready    chan *rtc.DataChannel
}

func NewPeer(sig *SignalClient, cfg rtc.Config) *Peer {
	return &Peer{
		sig:      sig,
		cfg:      cfg,
		sessions: make(chan domain.SessionID, 1),
		ready:    make(chan *rtc.DataChannel, 1),
	}
}

// Sessions yields the session id once it is created or joined.
func (p *Peer) Sessions() <-chan domain.SessionID { return p.sessions }

// Ready yields the file channel once it is open.
func (p *Peer) Ready() <-chan *rtc.DataChannel { return p.ready }

func (p *Peer) SessionID() domain.SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Self is this client's relay connection id, known after a whoami exchange.
func (p *Peer) Self() domain.ConnID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.self
}

func (p *Peer) WhoAmI() error {
	return p.sig.Send(domain.Envelope{Type: domain.EventWhoAmI})
}

func (p *Peer) StartSession() error {
	return p.sig.Send(domain.Envelope{Type: domain.EventStartSession})
}

func (p *Peer) JoinSession(id domain.SessionID) error {
	return p.sig.Send(domain.Envelope{Type: domain.EventJoinSession, SessionID: id})
}

// Run handles relay events until ctx ends, the relay goes away, the session
// is refused or the other peer leaves.
func (p *Peer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-p.sig.Events():
			if !ok {
				return ErrSignalClosed
			}
			if err := p.handle(env); err != nil {
				return err
			}
		}
	}
}

func (p *Peer) handle(env domain.Envelope) error {
	switch env.Type {
	case domain.EventSessionCreated, domain.EventSessionJoined:
		p.mu.Lock()
		p.sessionID = env.SessionID
		p.mu.Unlock()
		log.Info().Str("module", "client").Str("type", env.Type).Str("session", string(env.SessionID)).Msg("session ready")
		select {
		case p.sessions <- env.SessionID:
		default:
		}
	case domain.EventNotFoundOrFull:
		return ErrSessionUnavailable
	case domain.EventInitiateOffer:
		return p.offer(env.PeerID)
	case domain.EventOffer:
		return p.answer(env.Offer)
	case domain.EventAnswer:
		return p.applyAnswer(env.Answer)
	case domain.EventICECandidate:
		p.addCandidate(env.Candidate)
	case domain.EventPeerDisconnected:
		log.Info().Str("module", "client").Str("peer", string(env.PeerID)).Msg("peer left session")
		return ErrPeerDisconnected
	case domain.EventWhoAmI:
		p.mu.Lock()
		p.self = env.PeerID
		p.mu.Unlock()
	case domain.EventError:
		log.Warn().Str("module", "client").Str("error", env.Error).Str("ref", env.Ref).Msg("relay error")
	case domain.EventPong:
	default:
		log.Debug().Str("module", "client").Str("type", env.Type).Msg("ignoring relay message")
	}
	return nil
}

func (p *Peer) connection() (*rtc.PeerConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pc != nil {
		return p.pc, nil
	}
	pc, err := rtc.NewPeerConnection(p.cfg)
	if err != nil {
		return nil, err
	}
	pc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		raw, err := json.Marshal(ci)
		if err != nil {
			return
		}
		if err := p.sig.Send(domain.Envelope{Type: domain.EventICECandidate, SessionID: p.SessionID(), Candidate: raw}); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("send candidate")
		}
	})
	pc.OnDataChannel(p.adopt)
	p.pc = pc
	return pc, nil
}

func (p *Peer) adopt(ch *rtc.DataChannel) {
	if p.OnChannel != nil {
		p.OnChannel(ch)
	}
	go func() {
		select {
		case <-ch.Opened():
			p.ready <- ch
		case <-ch.Done():
		}
	}()
}

func (p *Peer) offer(to domain.ConnID) error {
	pc, err := p.connection()
	if err != nil {
		return err
	}
	offer, ch, err := pc.CreateOffer()
	if err != nil {
		return err
	}
	p.adopt(ch)
	raw, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}
	log.Info().Str("module", "client").Str("peer", string(to)).Msg("sending offer")
	return p.sig.Send(domain.Envelope{Type: domain.EventOffer, SessionID: p.SessionID(), Offer: raw})
}

func (p *Peer) answer(raw json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("undecodable offer")
		return nil
	}
	pc, err := p.connection()
	if err != nil {
		return err
	}
	answer, err := pc.AcceptOffer(offer)
	if err != nil {
		return err
	}
	out, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	log.Info().Str("module", "client").Msg("sending answer")
	return p.sig.Send(domain.Envelope{Type: domain.EventAnswer, SessionID: p.SessionID(), Answer: out})
}

func (p *Peer) applyAnswer(raw json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("undecodable answer")
		return nil
	}
	p.mu.Lock()
	pc := p.pc
	p.mu.Unlock()
	if pc == nil {
		log.Warn().Str("module", "client").Msg("answer without offer")
		return nil
	}
	return pc.ApplyAnswer(answer)
}

func (p *Peer) addCandidate(raw json.RawMessage) {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &ci); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("undecodable candidate")
		return
	}
	// Early candidates are held by the connection until the offer lands.
	pc, err := p.connection()
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("create peer connection")
		return
	}
	if err := pc.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("add candidate")
	}
}

func (p *Peer) Close() {
	p.mu.Lock()
	pc := p.pc
	p.mu.Unlock()
	if pc != nil {
		pc.Close()
	}
	p.sig.Close()
}
