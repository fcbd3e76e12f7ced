package capture

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelids/sentinel/log"
)

// Simulator generates a plausible packet stream and periodic stats without
// any external dependency. It is the authoritative producer whenever the
// capture backend is unreachable, and usable indefinitely on its own.
type Simulator struct {
	feed

	clock Clock

	mu           sync.Mutex
	rng          *rand.Rand
	running      bool
	startTime    time.Time
	totalPackets int64
	anomalies    int64
	burst        []Timer
	packetTimer  Timer
	statsTimer   Timer

	packetMin  time.Duration
	packetMax  time.Duration
	statsEvery time.Duration
}

// SimulatorConfig tunes generation cadence. Zero values fall back to the
// reference behavior: packets every [500ms, 3s), stats every 2s.
type SimulatorConfig struct {
	Clock             Clock
	Rand              *rand.Rand
	PacketIntervalMin time.Duration
	PacketIntervalMax time.Duration
	StatsInterval     time.Duration
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.PacketIntervalMin <= 0 {
		cfg.PacketIntervalMin = 500 * time.Millisecond
	}
	if cfg.PacketIntervalMax <= cfg.PacketIntervalMin {
		cfg.PacketIntervalMax = 3000 * time.Millisecond
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 2 * time.Second
	}
	return &Simulator{
		clock:      cfg.Clock,
		rng:        cfg.Rand,
		packetMin:  cfg.PacketIntervalMin,
		packetMax:  cfg.PacketIntervalMax,
		statsEvery: cfg.StatsInterval,
	}
}

// Candidate pools for synthesis. Sources mix LAN hosts with a couple of
// external addresses; destinations mix gateways and well-known services.
var (
	simSourceIPs = []string{
		"192.168.1.100", "192.168.1.101", "192.168.1.102", "192.168.1.103",
		"10.0.0.50", "10.0.0.51", "172.16.1.20", "172.16.1.21",
		"203.0.113.5", "198.51.100.10",
	}

	simDestinationIPs = []string{
		"192.168.1.1", "8.8.8.8", "1.1.1.1", "172.217.16.142",
		"52.86.25.205", "13.107.42.14", "104.16.249.249",
		"192.168.1.254", "10.0.0.1",
	}

	simProtocols = []Protocol{
		ProtocolTCP, ProtocolUDP, ProtocolHTTP, ProtocolHTTPS,
		ProtocolDNS, ProtocolSSH, ProtocolFTP,
	}

	simInterfaces = []Interface{
		{Name: "eth0", IP: "192.168.1.100", Status: InterfaceActive},
		{Name: "wlan0", IP: "192.168.1.101", Status: InterfaceActive},
		{Name: "lo", IP: "127.0.0.1", Status: InterfaceActive},
		{Name: "docker0", IP: "172.17.0.1", Status: InterfaceInactive},
	}
)

// threat mix: mostly informational, a trickle of real trouble
var simThreatWeights = []struct {
	level  ThreatLevel
	weight int
}{
	{ThreatInfo, 70},
	{ThreatLow, 15},
	{ThreatMedium, 10},
	{ThreatHigh, 4},
	{ThreatCritical, 1},
}

var simBaseScores = map[ThreatLevel]float64{
	ThreatInfo:     0.05,
	ThreatLow:      0.25,
	ThreatMedium:   0.5,
	ThreatHigh:     0.75,
	ThreatCritical: 0.9,
}

// Start begins generation. Calling it while already running is a no-op.
func (s *Simulator) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.startTime = s.clock.Now()
	s.totalPackets = 0
	s.anomalies = 0

	// Short burst for responsive first paint, then the recurring schedule.
	s.burst = s.burst[:0]
	for i := 0; i < 5; i++ {
		s.burst = append(s.burst, s.clock.AfterFunc(time.Duration(i)*200*time.Millisecond, s.emitPacket))
	}
	s.burst = append(s.burst, s.clock.AfterFunc(100*time.Millisecond, s.emitStats))
	s.packetTimer = s.clock.AfterFunc(s.nextPacketIntervalLocked(), s.packetTick)
	s.statsTimer = s.clock.AfterFunc(s.statsEvery, s.statsTick)
	s.mu.Unlock()

	log.Infof("Simulation mode active, generating synthetic traffic")
	s.status.publish(StatusConnected)
	s.interfaces.publish(append([]Interface(nil), simInterfaces...))
}

// Stop cancels all timers. Safe to call from any state.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for _, t := range s.burst {
		t.Stop()
	}
	s.burst = nil
	if s.packetTimer != nil {
		s.packetTimer.Stop()
		s.packetTimer = nil
	}
	if s.statsTimer != nil {
		s.statsTimer.Stop()
		s.statsTimer = nil
	}
	s.mu.Unlock()

	log.Infof("Simulation stopped")
	s.status.publish(StatusDisconnected)
}

// Destroy stops the simulator and drops every subscriber. The instance is
// unusable afterward.
func (s *Simulator) Destroy() {
	s.Stop()
	s.clearSubscribers()
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// packetTick emits one packet and re-rolls the interval for the next one.
func (s *Simulator) packetTick() {
	s.emitPacket()

	s.mu.Lock()
	if s.running {
		s.packetTimer = s.clock.AfterFunc(s.nextPacketIntervalLocked(), s.packetTick)
	}
	s.mu.Unlock()
}

func (s *Simulator) statsTick() {
	s.emitStats()

	s.mu.Lock()
	if s.running {
		s.statsTimer = s.clock.AfterFunc(s.statsEvery, s.statsTick)
	}
	s.mu.Unlock()
}

func (s *Simulator) nextPacketIntervalLocked() time.Duration {
	spread := s.packetMax - s.packetMin
	return s.packetMin + time.Duration(s.rng.Int63n(int64(spread)))
}

func (s *Simulator) emitPacket() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	pkt := s.synthesizeLocked()
	s.totalPackets++
	if pkt.Prediction == PredictionAnomaly {
		s.anomalies++
	}
	s.mu.Unlock()

	s.packets.publish(pkt)
}

func (s *Simulator) emitStats() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	elapsed := s.clock.Now().Sub(s.startTime).Seconds()
	pps := 0.0
	if elapsed > 0 {
		// lifetime average, matching the backend's report
		pps = math.Floor(float64(s.totalPackets) / elapsed)
	}
	stats := Stats{
		TotalPackets:      s.totalPackets,
		PacketsPerSecond:  pps,
		AnomaliesDetected: s.anomalies,
		IsCapturing:       true,
		ConnectedClients:  1,
		QueueSize:         s.rng.Intn(50),
	}
	s.mu.Unlock()

	s.stats.publish(stats)
}

// synthesizeLocked builds one packet. The threat level is drawn from the
// weighted mix, but the published level is re-derived from the final noisy
// score so the level always matches the score bucketing.
func (s *Simulator) synthesizeLocked() Packet {
	protocol := simProtocols[s.rng.Intn(len(simProtocols))]

	drawn := s.weightedThreatLocked()
	score := simBaseScores[drawn] + (s.rng.Float64()-0.5)*0.2
	score = math.Max(0, math.Min(1, score))
	level := ThreatLevelForScore(score)

	prediction := PredictionNormal
	if level != ThreatInfo && s.rng.Float64() < 0.3 {
		prediction = PredictionAnomaly
	}

	return Packet{
		ID:              fmt.Sprintf("sim_%s", uuid.NewString()),
		Timestamp:       s.clock.Now(),
		SourceIP:        simSourceIPs[s.rng.Intn(len(simSourceIPs))],
		DestinationIP:   simDestinationIPs[s.rng.Intn(len(simDestinationIPs))],
		SourcePort:      1024 + s.rng.Intn(65535-1024),
		DestinationPort: s.destinationPortLocked(protocol),
		Protocol:        protocol,
		Size:            s.packetSizeLocked(protocol),
		Flags:           s.flagsLocked(protocol),
		PayloadPreview:  s.payloadPreviewLocked(protocol),
		ThreatLevel:     level,
		AnomalyScore:    score,
		Prediction:      prediction,
		Features:        s.randomFeaturesLocked(),
	}
}

func (s *Simulator) weightedThreatLocked() ThreatLevel {
	roll := s.rng.Float64() * 100
	cumulative := 0.0
	for _, tw := range simThreatWeights {
		cumulative += float64(tw.weight)
		if roll <= cumulative {
			return tw.level
		}
	}
	return ThreatInfo
}

var simCommonPorts = map[Protocol][]int{
	ProtocolHTTP:  {80, 8080, 3000, 8000},
	ProtocolHTTPS: {443, 8443},
	ProtocolDNS:   {53},
	ProtocolSSH:   {22, 2222},
	ProtocolFTP:   {21, 2121},
	ProtocolTCP:   {80, 443, 22, 25, 110, 143, 993, 995},
	ProtocolUDP:   {53, 67, 68, 123, 161, 514},
}

func (s *Simulator) destinationPortLocked(p Protocol) int {
	ports, ok := simCommonPorts[p]
	if !ok {
		ports = []int{80, 443, 22, 53}
	}
	return ports[s.rng.Intn(len(ports))]
}

var simSizeRanges = map[Protocol][2]int{
	ProtocolDNS:   {64, 512},
	ProtocolHTTP:  {200, 1500},
	ProtocolHTTPS: {200, 1500},
	ProtocolSSH:   {64, 1500},
	ProtocolFTP:   {64, 1500},
	ProtocolTCP:   {64, 1500},
	ProtocolUDP:   {64, 1024},
}

func (s *Simulator) packetSizeLocked(p Protocol) int {
	r, ok := simSizeRanges[p]
	if !ok {
		r = [2]int{64, 1500}
	}
	return r[0] + s.rng.Intn(r[1]-r[0])
}

var simTCPFlagSets = [][]string{
	{"SYN"},
	{"SYN", "ACK"},
	{"ACK"},
	{"FIN", "ACK"},
	{"RST"},
	{"PSH", "ACK"},
	{},
}

func (s *Simulator) flagsLocked(p Protocol) []string {
	if p != ProtocolTCP {
		return []string{}
	}
	set := simTCPFlagSets[s.rng.Intn(len(simTCPFlagSets))]
	return append([]string(nil), set...)
}

var simPayloadPreviews = map[Protocol][]string{
	ProtocolHTTP: {
		"GET /api/users HTTP/1.1",
		"POST /login HTTP/1.1",
		"GET /static/css/main.css HTTP/1.1",
		"GET /favicon.ico HTTP/1.1",
	},
	ProtocolHTTPS: {
		"TLS Handshake, Client Hello",
		"TLS Application Data",
		"TLS Change Cipher Spec",
		"TLS Alert",
	},
	ProtocolDNS: {
		"Query: google.com A",
		"Query: facebook.com AAAA",
		"Response: 142.250.191.14",
		"Query: cloudflare.com MX",
	},
	ProtocolSSH: {
		"SSH-2.0-OpenSSH_8.9",
		"Key Exchange Init",
		"Encrypted packet",
		"Authentication request",
	},
	ProtocolFTP: {
		"220 Welcome to FTP server",
		"USER anonymous",
		"PASS guest@",
		"LIST -la",
	},
}

func (s *Simulator) payloadPreviewLocked(p Protocol) string {
	previews, ok := simPayloadPreviews[p]
	if !ok {
		return "Binary data..."
	}
	return previews[s.rng.Intn(len(previews))]
}

func (s *Simulator) coin(p float64) float64 {
	if s.rng.Float64() < p {
		return 1
	}
	return 0
}

// randomFeaturesLocked fills every feature independently within plausible
// ranges. The vector is intentionally not derived from the packet's other
// attributes; the simulator trades causal realism for UI variety.
func (s *Simulator) randomFeaturesLocked() Features {
	r := s.rng
	return Features{
		Duration:             r.Float64() * 300,
		SrcBytes:             float64(r.Intn(10000)),
		DstBytes:             float64(r.Intn(10000)),
		Land:                 s.coin(0.01),
		WrongFragment:        s.coin(0.02),
		Urgent:               s.coin(0.001),
		Hot:                  float64(r.Intn(5)),
		NumFailedLogins:      float64(r.Intn(3)),
		LoggedIn:             s.coin(0.8),
		NumCompromised:       float64(r.Intn(2)),
		RootShell:            s.coin(0.05),
		SuAttempted:          s.coin(0.1),
		NumRoot:              float64(r.Intn(3)),
		NumFileCreations:     float64(r.Intn(10)),
		NumShells:            float64(r.Intn(2)),
		NumAccessFiles:       float64(r.Intn(20)),
		NumOutboundCmds:      float64(r.Intn(5)),
		IsHostLogin:          s.coin(0.3),
		IsGuestLogin:         s.coin(0.1),
		Count:                float64(r.Intn(100) + 1),
		SrvCount:             float64(r.Intn(50) + 1),
		SerrorRate:           r.Float64() * 0.1,
		SrvSerrorRate:        r.Float64() * 0.1,
		RerrorRate:           r.Float64() * 0.05,
		SrvRerrorRate:        r.Float64() * 0.05,
		SameSrvRate:          r.Float64(),
		DiffSrvRate:          r.Float64(),
		SrvDiffHostRate:      r.Float64(),
		DstHostCount:         float64(r.Intn(200) + 1),
		DstHostSrvCount:      float64(r.Intn(50) + 1),
		DstHostSameSrvRate:   r.Float64(),
		DstHostDiffSrvRate:   r.Float64(),
		DstHostSameSrcPort:   r.Float64(),
		DstHostSrvDiffHost:   r.Float64(),
		DstHostSerrorRate:    r.Float64() * 0.1,
		DstHostSrvSerrorRate: r.Float64() * 0.1,
		DstHostRerrorRate:    r.Float64() * 0.05,
		DstHostSrvRerrorRate: r.Float64() * 0.05,
	}
}
