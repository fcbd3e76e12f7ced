package capture

import (
	"strings"
	"time"
)

// Protocol is the fixed set of protocols the dashboard understands.
type Protocol string

const (
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolICMP  Protocol = "ICMP"
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolDNS   Protocol = "DNS"
	ProtocolSSH   Protocol = "SSH"
	ProtocolFTP   Protocol = "FTP"
)

var knownProtocols = map[string]Protocol{
	"TCP": ProtocolTCP, "UDP": ProtocolUDP, "ICMP": ProtocolICMP,
	"HTTP": ProtocolHTTP, "HTTPS": ProtocolHTTPS, "DNS": ProtocolDNS,
	"SSH": ProtocolSSH, "FTP": ProtocolFTP,
}

// NormalizeProtocol case-folds backend protocol strings into the fixed enum.
// Anything unrecognized maps to TCP so consumers never see a stray value.
func NormalizeProtocol(s string) Protocol {
	if p, ok := knownProtocols[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return p
	}
	return ProtocolTCP
}

// ThreatLevel is the 5-point bucketing of the anomaly score. The labels are
// the backend's wire values; the original service is French.
type ThreatLevel string

const (
	ThreatInfo     ThreatLevel = "Informationnel"
	ThreatLow      ThreatLevel = "Faible"
	ThreatMedium   ThreatLevel = "Moyen"
	ThreatHigh     ThreatLevel = "Élevé"
	ThreatCritical ThreatLevel = "Critique"
)

// ThreatLevelForScore buckets a score in [0,1] into a threat level.
func ThreatLevelForScore(score float64) ThreatLevel {
	switch {
	case score >= 0.9:
		return ThreatCritical
	case score >= 0.7:
		return ThreatHigh
	case score >= 0.5:
		return ThreatMedium
	case score >= 0.3:
		return ThreatLow
	default:
		return ThreatInfo
	}
}

// Prediction is the classifier's binary verdict.
type Prediction string

const (
	PredictionNormal  Prediction = "Normal"
	PredictionAnomaly Prediction = "Anomalie"
)

// DecisionThreshold is the score above which the backend classifier flags a
// packet as anomalous.
const DecisionThreshold = 0.7

// Features is the NSL-KDD style feature vector attached to every packet.
// Field names are the wire contract; the dashboard destructures all of them.
type Features struct {
	Duration             float64 `json:"duration"`
	SrcBytes             float64 `json:"src_bytes"`
	DstBytes             float64 `json:"dst_bytes"`
	Land                 float64 `json:"land"`
	WrongFragment        float64 `json:"wrong_fragment"`
	Urgent               float64 `json:"urgent"`
	Hot                  float64 `json:"hot"`
	NumFailedLogins      float64 `json:"num_failed_logins"`
	LoggedIn             float64 `json:"logged_in"`
	NumCompromised       float64 `json:"num_compromised"`
	RootShell            float64 `json:"root_shell"`
	SuAttempted          float64 `json:"su_attempted"`
	NumRoot              float64 `json:"num_root"`
	NumFileCreations     float64 `json:"num_file_creations"`
	NumShells            float64 `json:"num_shells"`
	NumAccessFiles       float64 `json:"num_access_files"`
	NumOutboundCmds      float64 `json:"num_outbound_cmds"`
	IsHostLogin          float64 `json:"is_host_login"`
	IsGuestLogin         float64 `json:"is_guest_login"`
	Count                float64 `json:"count"`
	SrvCount             float64 `json:"srv_count"`
	SerrorRate           float64 `json:"serror_rate"`
	SrvSerrorRate        float64 `json:"srv_serror_rate"`
	RerrorRate           float64 `json:"rerror_rate"`
	SrvRerrorRate        float64 `json:"srv_rerror_rate"`
	SameSrvRate          float64 `json:"same_srv_rate"`
	DiffSrvRate          float64 `json:"diff_srv_rate"`
	SrvDiffHostRate      float64 `json:"srv_diff_host_rate"`
	DstHostCount         float64 `json:"dst_host_count"`
	DstHostSrvCount      float64 `json:"dst_host_srv_count"`
	DstHostSameSrvRate   float64 `json:"dst_host_same_srv_rate"`
	DstHostDiffSrvRate   float64 `json:"dst_host_diff_srv_rate"`
	DstHostSameSrcPort   float64 `json:"dst_host_same_src_port_rate"`
	DstHostSrvDiffHost   float64 `json:"dst_host_srv_diff_host_rate"`
	DstHostSerrorRate    float64 `json:"dst_host_serror_rate"`
	DstHostSrvSerrorRate float64 `json:"dst_host_srv_serror_rate"`
	DstHostRerrorRate    float64 `json:"dst_host_rerror_rate"`
	DstHostSrvRerrorRate float64 `json:"dst_host_srv_rerror_rate"`
}

// DefaultFeatures is the all-neutral vector used when the backend omits one:
// a single clean connection, no errors, no privileged activity.
func DefaultFeatures() Features {
	return Features{
		Count:              1,
		SrvCount:           1,
		SameSrvRate:        1,
		DstHostCount:       1,
		DstHostSrvCount:    1,
		DstHostSameSrvRate: 1,
		DstHostSameSrcPort: 1,
	}
}

// Packet is one observed or simulated unit of network traffic, immutable
// once emitted by a producer.
type Packet struct {
	ID              string      `json:"id"`
	Timestamp       time.Time   `json:"timestamp"`
	SourceIP        string      `json:"sourceIp"`
	DestinationIP   string      `json:"destinationIp"`
	SourcePort      int         `json:"sourcePort"`
	DestinationPort int         `json:"destinationPort"`
	Protocol        Protocol    `json:"protocol"`
	Size            int         `json:"size"`
	Flags           []string    `json:"flags"`
	PayloadPreview  string      `json:"payloadPreview"`
	ThreatLevel     ThreatLevel `json:"threat_level"`
	AnomalyScore    float64     `json:"anomaly_score"`
	Prediction      Prediction  `json:"prediction"`
	Features        Features    `json:"features"`
}

// Stats is the periodic aggregate snapshot a producer reports. Field names
// are the backend's snake_case wire contract.
type Stats struct {
	TotalPackets      int64   `json:"total_packets"`
	PacketsPerSecond  float64 `json:"packets_per_second"`
	AnomaliesDetected int64   `json:"anomalies_detected"`
	IsCapturing       bool    `json:"is_capturing"`
	ConnectedClients  int     `json:"connected_clients"`
	QueueSize         int     `json:"queue_size"`
}

// Interface describes a capture-capable network adapter.
type Interface struct {
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Status string `json:"status"` // "active" or "inactive"
}

const (
	InterfaceActive   = "active"
	InterfaceInactive = "inactive"
)

// ModelInfo is the classifier metadata the backend reports on demand.
type ModelInfo struct {
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	Features        []string       `json:"features"`
	Hyperparameters map[string]any `json:"hyperparameters"`
	IsDummy         bool           `json:"is_dummy,omitempty"`
}

// ConnStatus is the remote link state.
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusError        ConnStatus = "error"
)
