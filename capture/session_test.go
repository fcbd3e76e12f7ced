package capture

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestSession(t *testing.T, maxPackets int) (*Session, *Simulator, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	sim := quietSim(clock)
	remote := NewRemoteClient(RemoteConfig{
		Clock:          clock,
		URL:            "ws://127.0.0.1:9",
		ConnectTimeout: 200 * time.Millisecond,
	})
	s := NewSession(SessionConfig{
		Simulator:  sim,
		Remote:     remote,
		MaxPackets: maxPackets,
	})
	t.Cleanup(s.Close)
	return s, sim, clock
}

func testPacket(id string) Packet {
	return Packet{
		ID:            id,
		Timestamp:     time.Now(),
		SourceIP:      "192.168.1.10",
		DestinationIP: "192.168.1.1",
		Protocol:      ProtocolTCP,
		ThreatLevel:   ThreatInfo,
		Prediction:    PredictionNormal,
		Flags:         []string{},
		Features:      DefaultFeatures(),
	}
}

func TestSessionBufferNewestFirst(t *testing.T) {
	s, _, _ := newTestSession(t, 5)
	s.Start()

	for i := 1; i <= 8; i++ {
		s.ingest(testPacket(fmt.Sprintf("p%d", i)), true)
	}

	got := s.Packets()
	if len(got) != 5 {
		t.Fatalf("Buffer should cap at 5 packets, got %d", len(got))
	}
	want := []string{"p8", "p7", "p6", "p5", "p4"}
	for i, p := range got {
		if p.ID != want[i] {
			t.Fatalf("Wrong order at %d: got %s, want %s (full: %v)", i, p.ID, want[i], ids(got))
		}
	}
}

func ids(packets []Packet) []string {
	out := make([]string, len(packets))
	for i, p := range packets {
		out[i] = p.ID
	}
	return out
}

func TestSessionIgnoresInactiveProducer(t *testing.T) {
	s, _, _ := newTestSession(t, 10)
	s.Start()

	// simulation is authoritative, remote packets must be dropped
	s.ingest(testPacket("from-sim"), true)
	s.ingest(testPacket("from-remote"), false)

	got := s.Packets()
	if len(got) != 1 || got[0].ID != "from-sim" {
		t.Fatalf("Only the authoritative producer may reach the buffer: %v", ids(got))
	}
}

func TestSessionStartEntersSimulation(t *testing.T) {
	s, sim, _ := newTestSession(t, 10)
	s.Start()

	if !s.UsingFallback() {
		t.Errorf("Start should enter simulation mode")
	}
	if !sim.Running() {
		t.Errorf("Simulator should be running after Start")
	}
	if s.Status() != StatusConnected {
		t.Errorf("Simulation publishes connected, got %v", s.Status())
	}
}

func TestConnectRemoteFailureFallsBack(t *testing.T) {
	s, sim, _ := newTestSession(t, 10)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if s.ConnectRemote(ctx, "ws://127.0.0.1:9") {
		t.Fatalf("Connecting to a closed port should fail")
	}

	if !s.UsingFallback() {
		t.Errorf("Failed connect must keep the session on simulation")
	}
	if !sim.Running() {
		t.Errorf("Simulator must keep running after a failed connect")
	}
}

func TestSessionDisconnectFromSimulation(t *testing.T) {
	s, sim, _ := newTestSession(t, 10)
	s.Start()

	var last ConnStatus
	s.OnStatus(func(st ConnStatus) { last = st })

	s.Disconnect()

	if s.UsingFallback() {
		t.Errorf("Disconnect clears the fallback flag")
	}
	if sim.Running() {
		t.Errorf("Disconnect must stop the simulator")
	}
	if last != StatusDisconnected {
		t.Errorf("Disconnect should publish disconnected, got %v", last)
	}

	// no producer is active now; nothing reaches the buffer
	s.ingest(testPacket("late"), true)
	if len(s.Packets()) != 0 {
		t.Errorf("No producer should be authoritative after Disconnect")
	}
}

func TestSessionCaptureControlInFallback(t *testing.T) {
	s, sim, _ := newTestSession(t, 10)
	s.Start()

	if err := s.StopCapture(); err != nil {
		t.Fatalf("StopCapture in fallback: %v", err)
	}
	if sim.Running() {
		t.Errorf("StopCapture should halt the simulator")
	}

	if err := s.StartCapture("eth0", ""); err != nil {
		t.Fatalf("StartCapture in fallback: %v", err)
	}
	if !sim.Running() {
		t.Errorf("StartCapture should restart the simulator")
	}
}

func TestSessionModelInfoRequiresBackend(t *testing.T) {
	s, _, _ := newTestSession(t, 10)
	s.Start()

	if _, err := s.GetModelInfo(context.Background()); err == nil {
		t.Fatalf("Model info must be refused in simulation mode")
	}
}

func TestSessionDerivedStats(t *testing.T) {
	s, _, _ := newTestSession(t, 10)
	s.Start()

	mk := func(id, src, dst string, proto Protocol, level ThreatLevel, score float64, pred Prediction) Packet {
		p := testPacket(id)
		p.SourceIP, p.DestinationIP = src, dst
		p.Protocol = proto
		p.ThreatLevel = level
		p.AnomalyScore = score
		p.Prediction = pred
		return p
	}

	s.ingest(mk("a", "192.168.1.10", "192.168.1.1", ProtocolTCP, ThreatInfo, 0.1, PredictionNormal), true)
	s.ingest(mk("b", "192.168.1.11", "8.8.8.8", ProtocolDNS, ThreatInfo, 0.2, PredictionNormal), true)
	s.ingest(mk("c", "10.0.0.5", "1.1.1.1", ProtocolHTTPS, ThreatHigh, 0.8, PredictionAnomaly), true)
	s.ingest(mk("d", "10.0.0.5", "10.0.0.1", ProtocolTCP, ThreatCritical, 0.9, PredictionAnomaly), true)

	got := s.Stats()

	wantProtocols := map[Protocol]int{ProtocolTCP: 2, ProtocolDNS: 1, ProtocolHTTPS: 1}
	if diff := cmp.Diff(wantProtocols, got.ProtocolDistribution); diff != "" {
		t.Errorf("Protocol distribution mismatch (-want +got):\n%s", diff)
	}
	wantLevels := map[ThreatLevel]int{ThreatInfo: 2, ThreatHigh: 1, ThreatCritical: 1}
	if diff := cmp.Diff(wantLevels, got.ThreatLevelDistribution); diff != "" {
		t.Errorf("Threat distribution mismatch (-want +got):\n%s", diff)
	}
	if got.WindowAnomalies != 2 {
		t.Errorf("WindowAnomalies = %d, want 2", got.WindowAnomalies)
	}
	if want := 0.5; math.Abs(got.AverageAnomalyScore-want) > 1e-9 {
		t.Errorf("AverageAnomalyScore = %v, want %v", got.AverageAnomalyScore, want)
	}
	// a and d are fully internal flows; b and c cross to public addresses
	if got.InternalPackets != 2 || got.ExternalPackets != 2 {
		t.Errorf("Internal/external split = %d/%d, want 2/2", got.InternalPackets, got.ExternalPackets)
	}
	if !got.UsingFallback {
		t.Errorf("Stats should report fallback mode")
	}
}

func TestSessionDerivedStatsWindowBounded(t *testing.T) {
	s, _, _ := newTestSession(t, 3)
	s.Start()

	anomaly := testPacket("old-anomaly")
	anomaly.Prediction = PredictionAnomaly
	anomaly.ThreatLevel = ThreatHigh
	s.ingest(anomaly, true)

	for i := 0; i < 3; i++ {
		s.ingest(testPacket(fmt.Sprintf("n%d", i)), true)
	}

	got := s.Stats()
	if got.WindowAnomalies != 0 {
		t.Errorf("Evicted anomaly still counted: %d", got.WindowAnomalies)
	}
	if got.ThreatLevelDistribution[ThreatHigh] != 0 {
		t.Errorf("Evicted packet still in the distribution")
	}
}

func TestSessionRawStatsPassThrough(t *testing.T) {
	s, _, _ := newTestSession(t, 10)
	s.Start()

	s.rawStats(Stats{
		TotalPackets:      1234,
		PacketsPerSecond:  17,
		AnomaliesDetected: 9,
		IsCapturing:       true,
		ConnectedClients:  2,
		QueueSize:         41,
	}, true)

	got := s.Stats()
	if got.TotalPackets != 1234 || got.PacketsPerSecond != 17 || got.AnomaliesDetected != 9 {
		t.Errorf("Raw counters must pass through unchanged: %+v", got)
	}
	if !got.IsCapturing || got.ConnectedClients != 2 || got.QueueSize != 41 {
		t.Errorf("Raw capture state must pass through: %+v", got)
	}
}

func TestSessionFilters(t *testing.T) {
	s, _, _ := newTestSession(t, 10)
	s.Start()

	a := testPacket("a")
	a.Protocol = ProtocolDNS
	a.PayloadPreview = "DNS query for example.com"
	b := testPacket("b")
	b.Prediction = PredictionAnomaly
	b.ThreatLevel = ThreatHigh
	b.SourceIP = "203.0.113.9"
	c := testPacket("c")
	c.DestinationIP = "198.51.100.7"

	s.ingest(a, true)
	s.ingest(b, true)
	s.ingest(c, true)

	if got := s.PacketsByProtocol(ProtocolDNS); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("PacketsByProtocol: %v", ids(got))
	}
	if got := s.AnomalousPackets(); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("AnomalousPackets: %v", ids(got))
	}
	if got := s.PacketsByThreatLevel(ThreatHigh); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("PacketsByThreatLevel: %v", ids(got))
	}
	if got := s.SearchPackets("203.0.113"); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("SearchPackets by source: %v", ids(got))
	}
	if got := s.SearchPackets("EXAMPLE.COM"); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("Payload search should be case-insensitive: %v", ids(got))
	}
}

func TestSessionClearPackets(t *testing.T) {
	s, _, _ := newTestSession(t, 10)
	s.Start()

	s.ingest(testPacket("x"), true)
	s.ClearPackets()

	if len(s.Packets()) != 0 {
		t.Fatalf("ClearPackets left packets behind")
	}
	if got := s.Stats(); got.WindowAnomalies != 0 || len(got.ProtocolDistribution) != 0 {
		t.Errorf("Window aggregates should reset with the buffer: %+v", got)
	}
}

func TestSessionEviction(t *testing.T) {
	obs := &recordingObserver{}
	clock := newFakeClock()
	sim := NewSimulator(SimulatorConfig{
		Clock: clock,
		Rand:  rand.New(rand.NewSource(1)),
	})
	remote := NewRemoteClient(RemoteConfig{Clock: clock, URL: "ws://127.0.0.1:9"})
	s := NewSession(SessionConfig{
		Simulator:  sim,
		Remote:     remote,
		MaxPackets: 2,
		Observer:   obs,
	})
	defer s.Close()
	s.Start()

	for i := 0; i < 5; i++ {
		s.ingest(testPacket(fmt.Sprintf("p%d", i)), true)
	}

	if obs.ingested != 5 {
		t.Errorf("Observer saw %d ingests, want 5", obs.ingested)
	}
	if obs.evicted != 3 {
		t.Errorf("Observer saw %d evictions, want 3", obs.evicted)
	}
}

type recordingObserver struct {
	ingested int
	evicted  int
	statuses []ConnStatus
}

func (o *recordingObserver) PacketIngested(Packet, bool) { o.ingested++ }
func (o *recordingObserver) PacketEvicted()              { o.evicted++ }
func (o *recordingObserver) RemoteStatus(s ConnStatus)   { o.statuses = append(o.statuses, s) }
