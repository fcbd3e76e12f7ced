package capture

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodePacketFull(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "pkt-1",
		"timestamp": "2025-06-01T12:30:45.123456",
		"sourceIp": "192.168.1.50",
		"destinationIp": "8.8.8.8",
		"sourcePort": 51234,
		"destinationPort": 443,
		"protocol": "https",
		"size": 1420,
		"flags": ["ACK", "PSH"],
		"payloadPreview": "TLS application data",
		"threat_level": "Moyen",
		"anomaly_score": 0.55,
		"prediction": "Normal"
	}`)

	pkt, err := decodePacket(raw)
	if err != nil {
		t.Fatalf("decodePacket failed: %v", err)
	}

	if pkt.ID != "pkt-1" {
		t.Errorf("ID = %q", pkt.ID)
	}
	if pkt.Protocol != ProtocolHTTPS {
		t.Errorf("Protocol = %q, want HTTPS", pkt.Protocol)
	}
	if pkt.ThreatLevel != ThreatMedium {
		t.Errorf("ThreatLevel = %q, want Moyen", pkt.ThreatLevel)
	}
	if pkt.Timestamp.Year() != 2025 || pkt.Timestamp.Minute() != 30 {
		t.Errorf("Timestamp not parsed: %v", pkt.Timestamp)
	}
	// no feature vector on the wire: fall back to the neutral one
	if pkt.Features.Count != 1 || pkt.Features.SameSrvRate != 1 {
		t.Errorf("Missing features should default to the neutral vector, got %+v", pkt.Features)
	}
}

func TestDecodePacketDefaults(t *testing.T) {
	raw := json.RawMessage(`{"id": "pkt-2", "sourceIp": "10.0.0.1", "destinationIp": "10.0.0.2", "protocol": "quic"}`)

	pkt, err := decodePacket(raw)
	if err != nil {
		t.Fatalf("decodePacket failed: %v", err)
	}

	if pkt.Protocol != ProtocolTCP {
		t.Errorf("Unknown protocol should fold to TCP, got %q", pkt.Protocol)
	}
	if pkt.ThreatLevel != ThreatInfo {
		t.Errorf("Empty threat level should default to Informationnel, got %q", pkt.ThreatLevel)
	}
	if pkt.Prediction != PredictionNormal {
		t.Errorf("Empty prediction should default to Normal, got %q", pkt.Prediction)
	}
	if pkt.Flags == nil {
		t.Errorf("Flags must never be nil")
	}
	if pkt.Timestamp.IsZero() {
		t.Errorf("Unparseable timestamp should fall back to now, got zero value")
	}
}

func TestDecodePacketKeepsExplicitFeatures(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "pkt-3",
		"protocol": "tcp",
		"features": {"duration": 12, "src_bytes": 4096, "serror_rate": 0.8}
	}`)

	pkt, err := decodePacket(raw)
	if err != nil {
		t.Fatalf("decodePacket failed: %v", err)
	}

	if pkt.Features.Duration != 12 || pkt.Features.SrcBytes != 4096 {
		t.Errorf("Explicit features were not kept: %+v", pkt.Features)
	}
	if pkt.Features.SerrorRate != 0.8 {
		t.Errorf("serror_rate = %v, want 0.8", pkt.Features.SerrorRate)
	}
	// explicit vector is taken verbatim, not merged with defaults
	if pkt.Features.Count != 0 {
		t.Errorf("Explicit vector should not be merged with defaults, count = %v", pkt.Features.Count)
	}
}

func TestDecodePacketMalformed(t *testing.T) {
	if _, err := decodePacket(json.RawMessage(`{"sourcePort": "not a number"}`)); err == nil {
		t.Fatalf("Expected an error for a malformed frame")
	}
}

func TestParseWireTime(t *testing.T) {
	cases := []string{
		"2025-06-01T12:30:45.123456",
		"2025-06-01T12:30:45",
		"2025-06-01T12:30:45.123456789Z",
		"2025-06-01T12:30:45+02:00",
	}
	for _, s := range cases {
		got := parseWireTime(s)
		if got.Year() != 2025 || got.Month() != time.June {
			t.Errorf("parseWireTime(%q) = %v", s, got)
		}
	}
}
