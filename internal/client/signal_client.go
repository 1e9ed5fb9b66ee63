package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Drop/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrSignalClosed = errors.New("signal connection closed")

const (
	writeWait = 5 * time.Second
	sendQueue = 64
)

// SignalClient is a relay connection: one write pump, one read pump and a
// channel of decoded envelopes.
type SignalClient struct {
	ws     *websocket.Conn
	send   chan []byte
	events chan domain.Envelope
	done   chan struct{}
	once   sync.Once
}

func Dial(ctx context.Context, url string) (*SignalClient, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	c := &SignalClient{
		ws:     ws,
		send:   make(chan []byte, sendQueue),
		events: make(chan domain.Envelope, sendQueue),
		done:   make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	log.Info().Str("module", "client").Str("relay", url).Msg("connected to relay")
	return c, nil
}

// Events yields relay messages until the connection ends, then closes.
func (c *SignalClient) Events() <-chan domain.Envelope { return c.events }

func (c *SignalClient) Done() <-chan struct{} { return c.done }

func (c *SignalClient) Send(env domain.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}
	select {
	case <-c.done:
		return ErrSignalClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrSignalClosed
	}
}

func (c *SignalClient) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *SignalClient) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("relay write failed")
				c.Close()
				return
			}
		}
	}
}

func (c *SignalClient) readPump() {
	defer close(c.events)
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Info().Err(err).Str("module", "client").Msg("relay connection ended")
			}
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("undecodable relay message")
			continue
		}
		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}
