package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Options tune the websocket side of the signaling channel.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	Timeout    time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 30 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type handlerFunc func(ctx context.Context, cl *client, data json.RawMessage) (any, error)

type SignalWSController struct {
	Orch *orch.Orchestrator

	opts     Options
	rid      atomic.Uint64
	handlers map[string]handlerFunc
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Orch: o,
		opts: opts.withDefaults(),
	}
	ctl.handlers = map[string]handlerFunc{
		"joinRoom":                 ctl.handleJoin,
		"leaveRoom":                ctl.handleLeave,
		"sendMessage":              ctl.handleSendMessage,
		"getRouterRtpCapabilities": ctl.handleCapabilities,
		"createProducerTransport":  ctl.handleCreateTransport(domain.DirectionSend),
		"createConsumerTransport":  ctl.handleCreateTransport(domain.DirectionRecv),
		"connectProducerTransport": ctl.handleConnectTransport(domain.DirectionSend),
		"connectConsumerTransport": ctl.handleConnectTransport(domain.DirectionRecv),
		"produce":                  ctl.handleProduce,
		"consume":                  ctl.handleConsume,
		"resumeConsumer":           ctl.handleResume,
		"pauseConsumer":            ctl.handlePause,
		"getProducers":             ctl.handleGetProducers,
		"closeProducer":            ctl.handleCloseProducer,
		"whoami":                   ctl.handleWhoAmI,
		"ping":                     ctl.handlePing,
	}
	return ctl
}

// WsSignalConn is the outbound half of one websocket; only writePump writes to the socket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
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

func (c *WsSignalConn) Close() {
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

// client is the per-connection state seen by handlers.
type client struct {
	sid domain.SessionID
	// defaultUser is the cookie client token, used when joinRoom omits userId.
	defaultUser domain.UserID
	conn        *WsSignalConn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	cl := &client{
		sid:         domain.NewSessionID(),
		defaultUser: domain.UserID(c.GetString("client_token")),
		conn:        conn,
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("new WS connection")

	sess := core.NewSession(cl.sid, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, cl)
}
