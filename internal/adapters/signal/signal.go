package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Drop/internal/app/orch"
	"github.com/dkeye/Drop/internal/core"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendQueue  int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  5 * time.Second,
		SendQueue:  32,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *JoinLimiter
	Opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *JoinLimiter, opts Options) *SignalWSController {
	def := DefaultOptions()
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = def.ReadLimit
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = def.PingPeriod
	}
	if opts.PongWait <= opts.PingPeriod {
		opts.PongWait = opts.PingPeriod + opts.PingPeriod/9
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = def.SendQueue
	}
	return &SignalWSController{Orch: o, Limiter: limiter, Opts: opts}
}

type wsSignalConn struct {
	conn WSConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ctl.Serve(ctx, ws, token)
}

// Serve registers ws as a new relay connection and starts its pumps.
func (ctl *SignalWSController) Serve(ctx context.Context, ws WSConn, token string) domain.ConnID {
	meta, err := domain.NewConnection(token)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("dropping client token")
		meta, _ = domain.NewConnection("")
	}
	log.Info().Str("module", "signal").Str("conn", string(meta.ID)).Str("token", meta.Token).Msg("new WS connection")

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Opts.SendQueue),
	}
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(core.NewConnSession(meta, conn), cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, meta.ID, conn)
	return meta.ID
}
