package alert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nats-io/nats.go"

	"github.com/sentinelids/sentinel/capture"
	"github.com/sentinelids/sentinel/log"
)

// Alert is the exported anomaly record. Subjects are
// <prefix>.<threat_level>, e.g. sentinel.alerts.critique.
type Alert struct {
	ID           string              `json:"id"`
	Timestamp    time.Time           `json:"timestamp"`
	SourceIP     string              `json:"source_ip"`
	DestIP       string              `json:"dest_ip"`
	Protocol     capture.Protocol    `json:"protocol"`
	ThreatLevel  capture.ThreatLevel `json:"threat_level"`
	AnomalyScore float64             `json:"anomaly_score"`
	Preview      string              `json:"preview,omitempty"`
}

// Publisher exports High/Critical anomalies to NATS, suppressing repeats of
// the same src/dst/level within the configured window so a noisy host does
// not flood the alert feed.
type Publisher struct {
	nc      *nats.Conn
	subject string
	window  time.Duration
	recent  *lru.Cache[string, time.Time]
	now     func() time.Time
	sub     *capture.Subscription
}

// Config for the exporter. An empty URL disables it entirely.
type Config struct {
	URL            string
	Subject        string
	SuppressWindow time.Duration
	CacheSize      int
}

// NewPublisher connects to NATS and subscribes to the session's packet
// stream. Returns (nil, nil) when no URL is configured.
func NewPublisher(cfg Config, session *capture.Session) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if cfg.Subject == "" {
		cfg.Subject = "sentinel.alerts"
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("sentinel-alerts"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	recent, err := lru.New[string, time.Time](cfg.CacheSize)
	if err != nil {
		nc.Close()
		return nil, err
	}

	p := &Publisher{
		nc:      nc,
		subject: cfg.Subject,
		window:  cfg.SuppressWindow,
		recent:  recent,
		now:     time.Now,
	}
	p.sub = session.OnPacket(p.handlePacket)
	log.Infof("Alert export enabled, publishing to %s on %s", cfg.Subject, cfg.URL)
	return p, nil
}

func (p *Publisher) handlePacket(pkt capture.Packet) {
	if !Exportable(pkt) {
		return
	}
	if p.suppressed(pkt) {
		return
	}

	a := Alert{
		ID:           pkt.ID,
		Timestamp:    pkt.Timestamp,
		SourceIP:     pkt.SourceIP,
		DestIP:       pkt.DestinationIP,
		Protocol:     pkt.Protocol,
		ThreatLevel:  pkt.ThreatLevel,
		AnomalyScore: pkt.AnomalyScore,
		Preview:      pkt.PayloadPreview,
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("%s.%s", p.subject, subjectToken(pkt.ThreatLevel))
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warnf("Failed to publish alert: %v", err)
	}
}

// Exportable reports whether a packet is worth an alert: an anomalous
// verdict at High or Critical.
func Exportable(pkt capture.Packet) bool {
	if pkt.Prediction != capture.PredictionAnomaly {
		return false
	}
	return pkt.ThreatLevel == capture.ThreatHigh || pkt.ThreatLevel == capture.ThreatCritical
}

// DedupeKey identifies a repeated alert source.
func DedupeKey(pkt capture.Packet) string {
	return fmt.Sprintf("%s|%s|%s", pkt.SourceIP, pkt.DestinationIP, pkt.ThreatLevel)
}

func (p *Publisher) suppressed(pkt capture.Packet) bool {
	key := DedupeKey(pkt)
	now := p.now()
	if last, ok := p.recent.Get(key); ok && now.Sub(last) < p.window {
		return true
	}
	p.recent.Add(key, now)
	return false
}

func subjectToken(level capture.ThreatLevel) string {
	// é → e keeps subjects plain ASCII
	t := strings.ToLower(string(level))
	t = strings.ReplaceAll(t, "é", "e")
	return t
}

// Close detaches from the session and drains NATS.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.sub.Cancel()
	p.nc.Drain()
}
