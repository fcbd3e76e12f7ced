package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// DerivedStats is the aggregate view the dashboard renders: the producer's
// raw counters passed through, plus distributions computed over the packets
// currently retained in the ring buffer (bounded by the window, not lifetime
// totals).
type DerivedStats struct {
	TotalPackets            int64               `json:"total_packets"`
	PacketsPerSecond        float64             `json:"packets_per_second"`
	AnomaliesDetected       int64               `json:"anomalies_detected"`
	WindowAnomalies         int                 `json:"window_anomalies"`
	AverageAnomalyScore     float64             `json:"average_anomaly_score"`
	ProtocolDistribution    map[Protocol]int    `json:"protocol_distribution"`
	ThreatLevelDistribution map[ThreatLevel]int `json:"threat_level_distribution"`
	InternalPackets         int                 `json:"internal_packets"`
	ExternalPackets         int                 `json:"external_packets"`
	IsCapturing             bool                `json:"is_capturing"`
	ConnectionStatus        ConnStatus          `json:"connection_status"`
	UsingFallback           bool                `json:"using_fallback"`
	ConnectedClients        int                 `json:"connected_clients"`
	QueueSize               int                 `json:"queue_size"`
}

// Observer receives ingestion callbacks, used by the metrics layer. All
// methods run on the producer's goroutine.
type Observer interface {
	PacketIngested(p Packet, fallback bool)
	PacketEvicted()
	RemoteStatus(s ConnStatus)
}

// Session is the single source of truth for which producer feeds the
// dashboard. It owns the bounded newest-first packet buffer, derives
// aggregate stats from the retained window, and rebroadcasts events to the
// view layer through one subscription surface. Both producers are explicit
// injected instances; nothing here is a package singleton.
type Session struct {
	sim      *Simulator
	remote   *RemoteClient
	class    *AddrClassifier
	observer Observer
	simSubs  []*Subscription
	remSubs  []*Subscription

	mu            sync.Mutex
	maxPackets    int
	packets       []Packet
	usingFallback bool
	started       bool
	lastRaw       Stats
	haveRaw       bool
	isCapturing   bool
	state         ConnStatus
	ifaces        []Interface

	outPackets bus[Packet]
	outStats   bus[DerivedStats]
	outIfaces  bus[[]Interface]
	outStatus  bus[ConnStatus]
}

// SessionConfig wires the producers into a coordinator.
type SessionConfig struct {
	Simulator  *Simulator
	Remote     *RemoteClient
	Classifier *AddrClassifier
	MaxPackets int
	Observer   Observer
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.MaxPackets <= 0 {
		cfg.MaxPackets = 1000
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewAddrClassifier()
	}
	s := &Session{
		sim:        cfg.Simulator,
		remote:     cfg.Remote,
		class:      cfg.Classifier,
		observer:   cfg.Observer,
		maxPackets: cfg.MaxPackets,
		state:      StatusDisconnected,
	}

	// Both producers stay subscribed for the session's lifetime; the
	// usingFallback flag gates which one actually reaches the buffer, so
	// switching is atomic with respect to subscribers.
	s.simSubs = append(s.simSubs,
		cfg.Simulator.OnPacket(func(p Packet) { s.ingest(p, true) }),
		cfg.Simulator.OnStats(func(st Stats) { s.rawStats(st, true) }),
		cfg.Simulator.OnInterfaces(func(ifs []Interface) { s.interfacesUpdate(ifs, true) }),
		cfg.Simulator.OnStatus(func(st ConnStatus) { s.statusUpdate(st, true) }),
	)
	s.remSubs = append(s.remSubs,
		cfg.Remote.OnPacket(func(p Packet) { s.ingest(p, false) }),
		cfg.Remote.OnStats(func(st Stats) { s.rawStats(st, false) }),
		cfg.Remote.OnInterfaces(func(ifs []Interface) { s.interfacesUpdate(ifs, false) }),
		cfg.Remote.OnStatus(func(st ConnStatus) { s.statusUpdate(st, false) }),
		cfg.Remote.OnLost(s.remoteLost),
	)
	return s
}

// Start activates the session in simulation mode. The dashboard always has
// something to show before any network capability exists; remote mode is
// only entered through an explicit, successful ConnectRemote.
func (s *Session) Start() {
	s.mu.Lock()
	s.started = true
	s.usingFallback = true
	s.mu.Unlock()
	s.sim.Start()
}

// ConnectRemote attempts the capture backend. On success the simulator is
// stopped and the remote feed becomes authoritative. On failure the
// simulator keeps (or resumes) running and false is returned instead of an
// error, so UI code can offer a retry without an exception reaching it.
func (s *Session) ConnectRemote(ctx context.Context, url string) bool {
	if err := s.remote.Connect(ctx, url); err != nil {
		s.mu.Lock()
		s.usingFallback = true
		s.mu.Unlock()
		s.sim.Start()
		return false
	}

	// The connected status fired while simulation was still authoritative
	// and was gated out; republish it now that the remote feed owns the
	// session.
	s.mu.Lock()
	s.usingFallback = false
	s.state = StatusConnected
	s.mu.Unlock()
	s.sim.Stop()
	if s.observer != nil {
		s.observer.RemoteStatus(StatusConnected)
	}
	s.outStatus.publish(StatusConnected)
	return true
}

// Disconnect stops whichever producer is authoritative. Deliberately leaves
// the session with no active producer and usingFallback=false; resuming any
// stream requires another explicit connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	fallback := s.usingFallback
	s.usingFallback = false
	s.mu.Unlock()

	if fallback {
		s.sim.Stop()
		// the simulator's disconnected status was gated out by the flag
		// flip above, so surface it here
		s.mu.Lock()
		s.state = StatusDisconnected
		s.mu.Unlock()
		s.outStatus.publish(StatusDisconnected)
	} else {
		s.remote.Disconnect()
	}
}

// StartCapture delegates to the authoritative producer. In fallback mode it
// always succeeds; against the backend it fails when not connected.
func (s *Session) StartCapture(interfaceName, filter string) error {
	if s.UsingFallback() {
		s.sim.Start()
		return nil
	}
	return s.remote.StartCapture(interfaceName, filter)
}

func (s *Session) StopCapture() error {
	if s.UsingFallback() {
		s.sim.Stop()
		return nil
	}
	return s.remote.StopCapture()
}

// GetModelInfo is served by the backend only; the simulator has no model.
func (s *Session) GetModelInfo(ctx context.Context) (ModelInfo, error) {
	if s.UsingFallback() {
		return ModelInfo{}, errors.New("model info requires the capture backend")
	}
	return s.remote.GetModelInfo(ctx)
}

// Close shuts down both producers and drops all subscribers.
func (s *Session) Close() {
	for _, sub := range s.simSubs {
		sub.Cancel()
	}
	for _, sub := range s.remSubs {
		sub.Cancel()
	}
	s.sim.Destroy()
	s.remote.Destroy()
	s.outPackets.clear()
	s.outStats.clear()
	s.outIfaces.clear()
	s.outStatus.clear()
}

// ---- event handling ------------------------------------------------------

// remoteLost is the fallback policy: when the remote link drops or fails
// while it was authoritative, simulation takes over. The transport itself
// never touches the simulator.
func (s *Session) remoteLost(diag string) {
	s.mu.Lock()
	if !s.started || s.usingFallback {
		s.mu.Unlock()
		return
	}
	s.usingFallback = true
	s.mu.Unlock()
	s.sim.Start()
}

// ingest appends one packet from the authoritative producer to the front of
// the ring buffer, evicting the oldest beyond maxPackets. Newest-first order
// is an observable contract: index 0 is always the latest packet.
func (s *Session) ingest(p Packet, fromSim bool) {
	s.mu.Lock()
	if fromSim != s.usingFallback {
		s.mu.Unlock()
		return
	}
	evicted := 0
	s.packets = append([]Packet{p}, s.packets...)
	if len(s.packets) > s.maxPackets {
		evicted = len(s.packets) - s.maxPackets
		s.packets = s.packets[:s.maxPackets]
	}
	stats := s.deriveLocked()
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.PacketIngested(p, fromSim)
		for i := 0; i < evicted; i++ {
			s.observer.PacketEvicted()
		}
	}
	s.outPackets.publish(p)
	s.outStats.publish(stats)
}

func (s *Session) rawStats(raw Stats, fromSim bool) {
	s.mu.Lock()
	if fromSim != s.usingFallback {
		s.mu.Unlock()
		return
	}
	s.lastRaw = raw
	s.haveRaw = true
	s.isCapturing = raw.IsCapturing
	stats := s.deriveLocked()
	s.mu.Unlock()

	s.outStats.publish(stats)
}

func (s *Session) interfacesUpdate(ifs []Interface, fromSim bool) {
	s.mu.Lock()
	if fromSim != s.usingFallback {
		s.mu.Unlock()
		return
	}
	s.ifaces = append([]Interface(nil), ifs...)
	s.mu.Unlock()

	s.outIfaces.publish(ifs)
}

func (s *Session) statusUpdate(st ConnStatus, fromSim bool) {
	s.mu.Lock()
	if fromSim != s.usingFallback {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()

	if s.observer != nil && !fromSim {
		s.observer.RemoteStatus(st)
	}
	s.outStatus.publish(st)
}

// deriveLocked recomputes window-bounded aggregates. Raw counters pass
// through unchanged from the producer's last report.
func (s *Session) deriveLocked() DerivedStats {
	d := DerivedStats{
		ProtocolDistribution:    make(map[Protocol]int),
		ThreatLevelDistribution: make(map[ThreatLevel]int),
		ConnectionStatus:        s.state,
		UsingFallback:           s.usingFallback,
		IsCapturing:             s.isCapturing,
	}
	if s.haveRaw {
		d.TotalPackets = s.lastRaw.TotalPackets
		d.PacketsPerSecond = s.lastRaw.PacketsPerSecond
		d.AnomaliesDetected = s.lastRaw.AnomaliesDetected
		d.ConnectedClients = s.lastRaw.ConnectedClients
		d.QueueSize = s.lastRaw.QueueSize
	}

	var scoreSum float64
	for _, p := range s.packets {
		d.ProtocolDistribution[p.Protocol]++
		d.ThreatLevelDistribution[p.ThreatLevel]++
		scoreSum += p.AnomalyScore
		if p.Prediction == PredictionAnomaly {
			d.WindowAnomalies++
		}
		if s.class.InternalFlow(p.SourceIP, p.DestinationIP) {
			d.InternalPackets++
		} else {
			d.ExternalPackets++
		}
	}
	if len(s.packets) > 0 {
		d.AverageAnomalyScore = scoreSum / float64(len(s.packets))
	}
	return d
}

// ---- accessors and window utilities --------------------------------------

func (s *Session) UsingFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingFallback
}

func (s *Session) IsCapturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isCapturing
}

func (s *Session) Status() ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Packets returns a copy of the retained window, newest first.
func (s *Session) Packets() []Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Packet(nil), s.packets...)
}

func (s *Session) Interfaces() []Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Interface(nil), s.ifaces...)
}

func (s *Session) Stats() DerivedStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deriveLocked()
}

// ClearPackets empties the retained window. Lifetime counters from the
// producer are unaffected.
func (s *Session) ClearPackets() {
	s.mu.Lock()
	s.packets = nil
	stats := s.deriveLocked()
	s.mu.Unlock()
	s.outStats.publish(stats)
}

// The filter and search helpers operate only over the retained window;
// evicted packets are gone.

func (s *Session) PacketsByProtocol(p Protocol) []Packet {
	return s.filter(func(pkt Packet) bool { return pkt.Protocol == p })
}

func (s *Session) AnomalousPackets() []Packet {
	return s.filter(func(pkt Packet) bool { return pkt.Prediction == PredictionAnomaly })
}

func (s *Session) PacketsByThreatLevel(level ThreatLevel) []Packet {
	return s.filter(func(pkt Packet) bool { return pkt.ThreatLevel == level })
}

func (s *Session) SearchPackets(query string) []Packet {
	q := strings.ToLower(query)
	return s.filter(func(pkt Packet) bool {
		return strings.Contains(pkt.SourceIP, query) ||
			strings.Contains(pkt.DestinationIP, query) ||
			strings.Contains(strings.ToLower(pkt.PayloadPreview), q)
	})
}

func (s *Session) filter(keep func(Packet) bool) []Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Packet
	for _, p := range s.packets {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// ---- view-layer subscriptions --------------------------------------------

func (s *Session) OnPacket(fn func(Packet)) *Subscription          { return s.outPackets.subscribe(fn) }
func (s *Session) OnStats(fn func(DerivedStats)) *Subscription     { return s.outStats.subscribe(fn) }
func (s *Session) OnInterfaces(fn func([]Interface)) *Subscription { return s.outIfaces.subscribe(fn) }
func (s *Session) OnStatus(fn func(ConnStatus)) *Subscription      { return s.outStatus.subscribe(fn) }
