package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentinelids/sentinel/capture"
	"github.com/sentinelids/sentinel/log"
	"github.com/sentinelids/sentinel/metrics"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboard may be served from a dev server on another port
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamClient struct {
	ws   *websocket.Conn
	send chan []byte
}

// frame mirrors the backend's tagged envelope so browser code can consume
// either stream with the same decoder.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StreamHub fans the session's live events out to dashboard WebSocket
// clients. One hub per server; clients register through Handle.
type StreamHub struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	in      chan []byte
	reg     chan *streamClient
	unreg   chan *streamClient
	stop    chan struct{}

	collector *metrics.Collector
	subs      []*capture.Subscription
}

func NewStreamHub(session *capture.Session, collector *metrics.Collector) *StreamHub {
	h := &StreamHub{
		clients:   map[*streamClient]struct{}{},
		in:        make(chan []byte, 1024),
		reg:       make(chan *streamClient),
		unreg:     make(chan *streamClient),
		stop:      make(chan struct{}),
		collector: collector,
	}

	h.subs = append(h.subs,
		session.OnPacket(func(p capture.Packet) { h.broadcast("packet", p) }),
		session.OnStats(func(s capture.DerivedStats) { h.broadcast("stats", s) }),
		session.OnInterfaces(func(ifs []capture.Interface) { h.broadcast("interfaces", ifs) }),
		session.OnStatus(func(s capture.ConnStatus) { h.broadcast("status", s) }),
	)

	go h.run()
	return h
}

func (h *StreamHub) broadcast(kind string, data any) {
	msg, err := json.Marshal(frame{Type: kind, Data: data})
	if err != nil {
		return
	}
	select {
	case h.in <- msg:
	default:
		// hub backlog full, drop the frame
	}
}

func (h *StreamHub) run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.reg:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			if h.collector != nil {
				h.collector.StreamClientConnected()
			}

		case c := <-h.unreg:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			if h.collector != nil {
				h.collector.StreamClientDisconnected()
			}

		case msg := <-h.in:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// client's buffer is full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Handle upgrades the request and attaches the client to the hub.
func (h *StreamHub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade stream WebSocket: %v", err)
		return
	}

	c := &streamClient{ws: conn, send: make(chan []byte, 256)}
	log.Tracef("Stream client connected: %s", r.RemoteAddr)

	// a hub that is already stopped will never drain reg
	select {
	case h.reg <- c:
	case <-h.stop:
		conn.Close()
		return
	}
	go c.writePump()
	c.readPump(h)
}

// Stop shuts the hub down and detaches from the session.
func (h *StreamHub) Stop() {
	select {
	case <-h.stop:
		return
	default:
		for _, sub := range h.subs {
			sub.Cancel()
		}
		close(h.stop)
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) readPump(h *StreamHub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.stop:
		}
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Tracef("Stream WebSocket error: %v", err)
			}
			break
		}
	}
}
