package relay

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState reports the health of the relayer connection. Consumers can
// read this to decide whether to trust live data or fall back.
type ConnState int32

const (
	StateUp   ConnState = iota // connected and healthy
	StateDown                  // disconnected — reconnect in progress
)

// WSConfig holds tunable parameters for a WSClient.
type WSConfig struct {
	URL string

	// Buffer sizes for the underlying TCP connection.
	ReadBufferSize  int
	WriteBufferSize int

	// PingInterval is how often a ping frame is written to keep the
	// connection alive; the relayer answers with pongs.
	PingInterval time.Duration

	// HeartbeatTimeout is the maximum duration of silence (no frame, no
	// pong) before the client considers the connection dead and
	// triggers a reconnect. Must exceed PingInterval.
	HeartbeatTimeout time.Duration

	// Backoff parameters for reconnection.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffFactor  float64

	// Headers sent during the WebSocket handshake.
	Headers http.Header
}

// DefaultWSConfig returns defaults tuned for sparse relayer traffic:
// auction and quote pushes can be many seconds apart, so liveness is
// established by pings rather than by message flow.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:              url,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		PingInterval:     10 * time.Second,
		HeartbeatTimeout: 30 * time.Second,
		BackoffInitial:   250 * time.Millisecond,
		BackoffMax:       15 * time.Second,
		BackoffFactor:    2.0,
	}
}

// WSClient maintains one duplex connection to the auction relayer. It
// reconnects with exponential backoff, replays registered subscription
// frames after every reconnect, and fans inbound frames out to
// subscribers. Sends while disconnected are dropped, not errors: callers
// observe State() or simply tolerate the gap.
type WSClient struct {
	cfg WSConfig

	state atomic.Int32

	mu   sync.RWMutex
	conn *websocket.Conn

	// subscribers receive copies of every inbound frame.
	subMu sync.RWMutex
	subs  []chan []byte

	// replay holds subscription frames re-sent after each reconnect.
	replayMu sync.Mutex
	replay   [][]byte

	// outbox for sending frames through the connection.
	outbox chan []byte

	cancel    context.CancelFunc
	done      chan struct{}
	connected bool

	// onReconnect is called after each successful reconnection (testing hook).
	onReconnect func()
}

// NewWSClient creates a new relayer client. Call Connect to start.
func NewWSClient(cfg WSConfig) *WSClient {
	c := &WSClient{
		cfg:    cfg,
		outbox: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	c.state.Store(int32(StateDown))
	return c
}

// State returns the current connection state.
func (ws *WSClient) State() ConnState {
	return ConnState(ws.state.Load())
}

// Subscribe returns a channel that receives copies of every inbound frame.
// The caller must drain the channel to avoid dropped frames.
func (ws *WSClient) Subscribe() <-chan []byte {
	ch := make(chan []byte, 512)
	ws.subMu.Lock()
	ws.subs = append(ws.subs, ch)
	ws.subMu.Unlock()
	return ch
}

// Send enqueues a frame for delivery. When the connection is down the
// frame is dropped silently (logged); the caller is expected to rely on
// replay registration or to tolerate the loss.
func (ws *WSClient) Send(data []byte) {
	if ws.State() != StateUp {
		log.Printf("ws: not connected, dropping frame (%d bytes)", len(data))
		return
	}
	select {
	case ws.outbox <- data:
	default:
		log.Printf("ws: outbox full, dropping frame (%d bytes)", len(data))
	}
}

// SendEnvelope JSON-encodes env and enqueues it.
func (ws *WSClient) SendEnvelope(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("ws: marshal %s envelope: %v", env.Type, err)
		return
	}
	ws.Send(data)
}

// AddReplay registers a frame that is sent now (if connected) and re-sent
// after every successful reconnect. Subscription envelopes belong here so
// a dropped connection does not silently lose the subscription.
func (ws *WSClient) AddReplay(data []byte) {
	ws.replayMu.Lock()
	ws.replay = append(ws.replay, data)
	ws.replayMu.Unlock()
	ws.Send(data)
}

// AddReplayEnvelope is AddReplay for a typed envelope.
func (ws *WSClient) AddReplayEnvelope(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("ws: marshal %s envelope: %v", env.Type, err)
		return
	}
	ws.AddReplay(data)
}

// Connect dials the relayer and starts the read/write loops. It blocks
// until the initial connection succeeds or ctx is cancelled. Calling
// Connect on an already-connected client is a no-op.
func (ws *WSClient) Connect(ctx context.Context) error {
	ws.mu.Lock()
	if ws.connected {
		ws.mu.Unlock()
		return nil
	}
	ws.connected = true
	ws.mu.Unlock()

	ctx, ws.cancel = context.WithCancel(ctx)

	if err := ws.dial(ctx); err != nil {
		ws.mu.Lock()
		ws.connected = false
		ws.mu.Unlock()
		return err
	}
	ws.state.Store(int32(StateUp))

	go ws.readLoop(ctx)
	go ws.writeLoop(ctx)

	return nil
}

// Close shuts down the client: a close frame is written best-effort, the
// connection is torn down, and all subscriber channels are closed.
func (ws *WSClient) Close() {
	if ws.cancel != nil {
		ws.cancel()
	}
	ws.state.Store(int32(StateDown))

	ws.mu.Lock()
	if ws.conn != nil {
		ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.conn.Close()
	}
	ws.mu.Unlock()

	ws.subMu.RLock()
	for _, ch := range ws.subs {
		close(ch)
	}
	ws.subMu.RUnlock()

	close(ws.done)
}

// Done returns a channel closed when the client has fully shut down.
func (ws *WSClient) Done() <-chan struct{} {
	return ws.done
}

// dial establishes the WebSocket connection with TCP_NODELAY enabled.
func (ws *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		ReadBufferSize:  ws.cfg.ReadBufferSize,
		WriteBufferSize: ws.cfg.WriteBufferSize,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			return conn, nil
		},
	}

	conn, _, err := dialer.DialContext(ctx, ws.cfg.URL, ws.cfg.Headers)
	if err != nil {
		return err
	}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(ws.cfg.HeartbeatTimeout))
		return nil
	})

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	return nil
}

// reconnect loops with exponential backoff until a connection is
// re-established or the context is cancelled, then replays registered
// subscription frames.
func (ws *WSClient) reconnect(ctx context.Context) bool {
	ws.state.Store(int32(StateDown))

	delay := ws.cfg.BackoffInitial
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := ws.dial(ctx); err != nil {
			log.Printf("ws: reconnect failed: %v (retry in %v)", err, delay)
			delay = time.Duration(math.Min(
				float64(delay)*ws.cfg.BackoffFactor,
				float64(ws.cfg.BackoffMax),
			))
			continue
		}

		ws.state.Store(int32(StateUp))
		ws.replaySubscriptions()
		if ws.onReconnect != nil {
			ws.onReconnect()
		}
		return true
	}
}

// replaySubscriptions re-sends every registered subscription frame on the
// fresh connection.
func (ws *WSClient) replaySubscriptions() {
	ws.replayMu.Lock()
	frames := make([][]byte, len(ws.replay))
	copy(frames, ws.replay)
	ws.replayMu.Unlock()

	for _, f := range frames {
		select {
		case ws.outbox <- f:
		default:
			log.Printf("ws: outbox full during replay, dropping frame")
		}
	}
}

// readLoop reads frames and fans them out to subscribers. The read
// deadline doubles as the heartbeat monitor: silence beyond
// HeartbeatTimeout triggers a reconnect.
func (ws *WSClient) readLoop(ctx context.Context) {
	for {
		ws.mu.RLock()
		c := ws.conn
		ws.mu.RUnlock()

		c.SetReadDeadline(time.Now().Add(ws.cfg.HeartbeatTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ws: read error (triggering reconnect): %v", err)
			c.Close()
			if !ws.reconnect(ctx) {
				return
			}
			continue
		}

		ws.fanOut(msg)
	}
}

// writeLoop drains the outbox and keeps the connection alive with pings.
func (ws *WSClient) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(ws.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws.mu.RLock()
			c := ws.conn
			ws.mu.RUnlock()
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				log.Printf("ws: ping error: %v", err)
			}
		case data := <-ws.outbox:
			ws.mu.RLock()
			c := ws.conn
			ws.mu.RUnlock()
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("ws: write error: %v", err)
			}
		}
	}
}

// fanOut delivers msg to every subscriber without blocking.
func (ws *WSClient) fanOut(msg []byte) {
	ws.subMu.RLock()
	defer ws.subMu.RUnlock()

	for _, ch := range ws.subs {
		select {
		case ch <- msg:
		default:
			// Slow consumer — drop to avoid head-of-line blocking.
		}
	}
}
