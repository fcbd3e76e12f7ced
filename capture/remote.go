package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentinelids/sentinel/log"
)

// RemoteClient owns the single duplex connection to the external capture and
// analysis service. It translates backend frames into the shared event model
// and never lets a transport failure escape as a panic or crash; failures
// surface as errors and as a "connection lost" signal the session coordinator
// reacts to.
type RemoteClient struct {
	feed

	clock          Clock
	defaultURL     string
	connectTimeout time.Duration
	heartbeatEvery time.Duration
	modelInfoWait  time.Duration

	lost bus[string]

	mu                sync.Mutex
	conn              *websocket.Conn
	state             ConnStatus
	gen               int
	heartbeatTimer    Timer
	reconnectAttempts int
	waiters           []chan ModelInfo

	writeMu sync.Mutex
}

// RemoteConfig carries the connection policy. Zero durations fall back to
// the reference values: 10s open timeout, 30s heartbeat, 3s model-info wait.
type RemoteConfig struct {
	Clock             Clock
	URL               string
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	ModelInfoTimeout  time.Duration
}

// DefaultBackendURL is where the local capture service listens.
const DefaultBackendURL = "ws://localhost:8765"

func NewRemoteClient(cfg RemoteConfig) *RemoteClient {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.URL == "" {
		cfg.URL = DefaultBackendURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ModelInfoTimeout <= 0 {
		cfg.ModelInfoTimeout = 3 * time.Second
	}
	return &RemoteClient{
		clock:          cfg.Clock,
		defaultURL:     cfg.URL,
		connectTimeout: cfg.ConnectTimeout,
		heartbeatEvery: cfg.HeartbeatInterval,
		modelInfoWait:  cfg.ModelInfoTimeout,
		state:          StatusDisconnected,
	}
}

// Connect opens the WebSocket to wsURL (the configured endpoint when empty).
// Connecting while already connected is a no-op. A stale broken transport is
// torn down before a fresh dial.
func (c *RemoteClient) Connect(ctx context.Context, wsURL string) error {
	if wsURL == "" {
		wsURL = c.defaultURL
	}

	c.mu.Lock()
	if c.state == StatusConnected && c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.state == StatusConnecting {
		// a dial is already in flight; a second transport must never open
		c.mu.Unlock()
		return errors.New("connect already in progress")
	}
	if c.conn != nil {
		// invalidate the old read loop and heartbeat before redialing
		c.gen++
		c.stopHeartbeatLocked()
		c.conn.Close()
		c.conn = nil
	}
	c.state = StatusConnecting
	c.mu.Unlock()
	c.feed.status.publish(StatusConnecting)

	log.Infof("Connecting to capture backend at %s", wsURL)
	dialer := websocket.Dialer{HandshakeTimeout: c.connectTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		diag := connectDiagnostic(wsURL, c.connectTimeout, err)
		log.Warnf("%s", diag)

		c.mu.Lock()
		c.state = StatusError
		c.reconnectAttempts++
		c.mu.Unlock()
		c.feed.status.publish(StatusError)
		c.lost.publish(diag)
		return fmt.Errorf("%s: %w", diag, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StatusConnected
	c.reconnectAttempts = 0
	c.gen++
	gen := c.gen
	c.armHeartbeatLocked(gen)
	c.mu.Unlock()

	log.Infof("Capture backend connected")
	c.feed.status.publish(StatusConnected)
	go c.readLoop(conn, gen)
	return nil
}

func connectDiagnostic(wsURL string, timeout time.Duration, err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("connection to %s timed out after %s", wsURL, timeout)
	}
	if isLoopbackURL(wsURL) {
		return fmt.Sprintf("local capture service not started at %s", wsURL)
	}
	return fmt.Sprintf("capture service unreachable at %s", wsURL)
}

func isLoopbackURL(wsURL string) bool {
	u, err := url.Parse(wsURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// Disconnect closes the transport with a normal-closure code. Idempotent.
func (c *RemoteClient) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	changed := c.state != StatusDisconnected
	c.state = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		log.Infof("Disconnecting from capture backend")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	if changed {
		c.feed.status.publish(StatusDisconnected)
	}
}

// Destroy disconnects and drops every subscriber.
func (c *RemoteClient) Destroy() {
	c.Disconnect()
	c.clearSubscribers()
	c.lost.clear()
}

func (c *RemoteClient) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RemoteClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatusConnected && c.conn != nil
}

// ReconnectAttempts reports how many consecutive dials have failed since
// the last successful open.
func (c *RemoteClient) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectAttempts
}

// OnLost subscribes to connection-failure diagnostics. The client only
// reports the loss; whether simulation takes over is the coordinator's
// policy, not the transport's.
func (c *RemoteClient) OnLost(fn func(string)) *Subscription {
	return c.lost.subscribe(fn)
}

// StartCapture asks the backend to begin sniffing. Fire-and-forget: the
// effect is observed through subsequent stats/packet frames.
func (c *RemoteClient) StartCapture(interfaceName, filter string) error {
	if !c.IsConnected() {
		return errors.New("not connected to capture backend")
	}
	cmd := startCaptureCmd{Type: cmdStartCapture, Filter: filter}
	if interfaceName != "" {
		cmd.Interface = &interfaceName
	}
	log.Infof("Requesting capture start (interface=%q filter=%q)", interfaceName, filter)
	return c.writeJSON(cmd)
}

func (c *RemoteClient) StopCapture() error {
	if !c.IsConnected() {
		return errors.New("not connected to capture backend")
	}
	log.Infof("Requesting capture stop")
	return c.writeJSON(envelope{Type: cmdStopCapture})
}

// GetModelInfo requests classifier metadata and waits for the correlated
// model_info frame. The one-shot waiter is detached on both the success and
// the timeout path.
func (c *RemoteClient) GetModelInfo(ctx context.Context) (ModelInfo, error) {
	c.mu.Lock()
	if c.state != StatusConnected || c.conn == nil {
		c.mu.Unlock()
		return ModelInfo{}, errors.New("not connected to capture backend")
	}
	ch := make(chan ModelInfo, 1)
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	if err := c.writeJSON(envelope{Type: cmdGetModelInfo}); err != nil {
		c.removeWaiter(ch)
		return ModelInfo{}, err
	}

	timedOut := make(chan struct{})
	t := c.clock.AfterFunc(c.modelInfoWait, func() { close(timedOut) })
	defer t.Stop()

	select {
	case info := <-ch:
		return info, nil
	case <-timedOut:
		c.removeWaiter(ch)
		return ModelInfo{}, fmt.Errorf("model info request timed out after %s", c.modelInfoWait)
	case <-ctx.Done():
		c.removeWaiter(ch)
		return ModelInfo{}, ctx.Err()
	}
}

func (c *RemoteClient) removeWaiter(ch chan ModelInfo) {
	c.mu.Lock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// ---- transport internals -------------------------------------------------

func (c *RemoteClient) writeJSON(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected to capture backend")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *RemoteClient) armHeartbeatLocked(gen int) {
	c.heartbeatTimer = c.clock.AfterFunc(c.heartbeatEvery, func() { c.heartbeatTick(gen) })
}

func (c *RemoteClient) stopHeartbeatLocked() {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
}

func (c *RemoteClient) heartbeatTick(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.armHeartbeatLocked(gen)
	c.mu.Unlock()

	if err := c.writeJSON(envelope{Type: cmdPing}); err != nil {
		log.Tracef("Heartbeat failed: %v", err)
	}
}

func (c *RemoteClient) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.handleMessage(gen, data)
	}
}

// handleClose runs when the transport drops for any reason. A generation
// mismatch means the close was deliberate and already handled.
func (c *RemoteClient) handleClose(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.stopHeartbeatLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StatusDisconnected
	c.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Infof("Capture backend closed the connection")
	} else {
		log.Warnf("Capture backend connection lost: %v", err)
	}
	c.feed.status.publish(StatusDisconnected)

	// No automatic redial: hammering an absent service only produces error
	// storms. The coordinator decides what happens next.
	c.lost.publish("connection to capture backend closed")
}

// handleMessage dispatches one inbound frame. Malformed or unknown frames
// are logged and dropped, never fatal. Frames from a superseded transport
// are dropped by the generation check, mirroring handleClose.
func (c *RemoteClient) handleMessage(gen int, data []byte) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warnf("Dropping malformed backend frame: %v", err)
		return
	}

	switch env.Type {
	case msgPacket:
		pkt, err := decodePacket(env.Data)
		if err != nil {
			log.Warnf("Dropping bad packet frame: %v", err)
			return
		}
		c.packets.publish(pkt)

	case msgStats:
		var stats Stats
		if err := json.Unmarshal(env.Data, &stats); err != nil {
			log.Warnf("Dropping bad stats frame: %v", err)
			return
		}
		c.stats.publish(stats)

	case msgInterfaces:
		var ifaces []Interface
		if err := json.Unmarshal(env.Data, &ifaces); err != nil {
			log.Warnf("Dropping bad interfaces frame: %v", err)
			return
		}
		c.interfaces.publish(ifaces)

	case msgModelInfo:
		var info ModelInfo
		if err := json.Unmarshal(env.Data, &info); err != nil {
			log.Warnf("Dropping bad model_info frame: %v", err)
			return
		}
		c.mu.Lock()
		waiters := c.waiters
		c.waiters = nil
		c.mu.Unlock()
		for _, w := range waiters {
			w <- info
		}

	case msgError:
		log.Warnf("Capture backend reported an error: %s", string(env.Data))

	case msgStatus:
		log.Tracef("Capture backend status: %s", string(env.Data))

	default:
		log.Warnf("Ignoring unknown backend frame type %q", env.Type)
	}
}
