package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentinelids/sentinel/capture"
)

func TestStreamHubBroadcastsSessionEvents(t *testing.T) {
	sim := capture.NewSimulator(capture.SimulatorConfig{
		PacketIntervalMin: time.Hour,
		PacketIntervalMax: 2 * time.Hour,
		StatsInterval:     time.Hour,
	})
	remote := capture.NewRemoteClient(capture.RemoteConfig{URL: "ws://127.0.0.1:9"})
	session := capture.NewSession(capture.SessionConfig{Simulator: sim, Remote: remote})
	defer session.Close()

	hub := NewStreamHub(session, nil)
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// let the hub register the client before events start flowing
	time.Sleep(50 * time.Millisecond)
	session.Start()

	seen := map[string]bool{}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && (!seen["status"] || !seen["interfaces"] || !seen["packet"]) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var f struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg, &f); err != nil {
			t.Fatalf("Bad frame: %v", err)
		}
		seen[f.Type] = true
	}

	for _, want := range []string{"status", "interfaces", "packet"} {
		if !seen[want] {
			t.Errorf("Never received a %q frame (saw %v)", want, seen)
		}
	}
}

func TestStreamHubHandleAfterStop(t *testing.T) {
	sim := capture.NewSimulator(capture.SimulatorConfig{
		PacketIntervalMin: time.Hour,
		PacketIntervalMax: 2 * time.Hour,
		StatsInterval:     time.Hour,
	})
	remote := capture.NewRemoteClient(capture.RemoteConfig{URL: "ws://127.0.0.1:9"})
	session := capture.NewSession(capture.SessionConfig{Simulator: sim, Remote: remote})
	defer session.Close()

	hub := NewStreamHub(session, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer srv.Close()

	hub.Stop()

	// an upgrade landing after Stop must be turned away, not hang the
	// handler goroutine on the registration channel
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		// the handshake itself may already fail; that is a clean refusal
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Connection to a stopped hub should be closed")
	}
}

func TestStreamHubStopDisconnectsClients(t *testing.T) {
	sim := capture.NewSimulator(capture.SimulatorConfig{
		PacketIntervalMin: time.Hour,
		PacketIntervalMax: 2 * time.Hour,
		StatsInterval:     time.Hour,
	})
	remote := capture.NewRemoteClient(capture.RemoteConfig{URL: "ws://127.0.0.1:9"})
	session := capture.NewSession(capture.SessionConfig{Simulator: sim, Remote: remote})
	defer session.Close()

	hub := NewStreamHub(session, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection closed by the hub
		}
	}
}
