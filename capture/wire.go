package capture

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire frames exchanged with the capture backend. Everything is a tagged
// {type, data} JSON envelope over one duplex WebSocket.
const (
	msgPacket     = "packet"
	msgStats      = "stats"
	msgInterfaces = "interfaces"
	msgError      = "error"
	msgStatus     = "status"
	msgModelInfo  = "model_info"

	cmdPing         = "ping"
	cmdStartCapture = "start_capture"
	cmdStopCapture  = "stop_capture"
	cmdGetModelInfo = "get_model_info"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type startCaptureCmd struct {
	Type      string  `json:"type"`
	Interface *string `json:"interface"`
	Filter    string  `json:"filter"`
}

// wirePacket mirrors what the backend actually sends: loose timestamp,
// free-form protocol string, optional feature vector.
type wirePacket struct {
	ID              string      `json:"id"`
	Timestamp       string      `json:"timestamp"`
	SourceIP        string      `json:"sourceIp"`
	DestinationIP   string      `json:"destinationIp"`
	SourcePort      int         `json:"sourcePort"`
	DestinationPort int         `json:"destinationPort"`
	Protocol        string      `json:"protocol"`
	Size            int         `json:"size"`
	Flags           []string    `json:"flags"`
	PayloadPreview  string      `json:"payloadPreview"`
	ThreatLevel     ThreatLevel `json:"threat_level"`
	AnomalyScore    float64     `json:"anomaly_score"`
	Prediction      Prediction  `json:"prediction"`
	Features        *Features   `json:"features"`
}

// backend timestamps are datetime.isoformat(), with or without a zone
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseWireTime(s string) time.Time {
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}

// decodePacket normalizes a raw backend packet frame so consumers never see
// partial data: protocols are folded into the enum, a missing feature vector
// is replaced with the neutral default, and empty verdict fields get the
// benign values.
func decodePacket(data json.RawMessage) (Packet, error) {
	var raw wirePacket
	if err := json.Unmarshal(data, &raw); err != nil {
		return Packet{}, fmt.Errorf("malformed packet frame: %w", err)
	}

	pkt := Packet{
		ID:              raw.ID,
		Timestamp:       parseWireTime(raw.Timestamp),
		SourceIP:        raw.SourceIP,
		DestinationIP:   raw.DestinationIP,
		SourcePort:      raw.SourcePort,
		DestinationPort: raw.DestinationPort,
		Protocol:        NormalizeProtocol(raw.Protocol),
		Size:            raw.Size,
		Flags:           raw.Flags,
		PayloadPreview:  raw.PayloadPreview,
		ThreatLevel:     raw.ThreatLevel,
		AnomalyScore:    raw.AnomalyScore,
		Prediction:      raw.Prediction,
	}
	if pkt.Flags == nil {
		pkt.Flags = []string{}
	}
	if pkt.ThreatLevel == "" {
		pkt.ThreatLevel = ThreatInfo
	}
	if pkt.Prediction == "" {
		pkt.Prediction = PredictionNormal
	}
	if raw.Features != nil {
		pkt.Features = *raw.Features
	} else {
		pkt.Features = DefaultFeatures()
	}
	return pkt, nil
}
