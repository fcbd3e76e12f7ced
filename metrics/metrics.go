package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sentinelids/sentinel/capture"
)

// Collector implements capture.Observer and exposes the session's activity
// to Prometheus. One instance per process, registered on the default
// registry and served through /metrics.
type Collector struct {
	packetsTotal   *prometheus.CounterVec
	anomaliesTotal prometheus.Counter
	evictedTotal   prometheus.Counter
	remoteState    prometheus.Gauge
	streamClients  prometheus.Gauge
}

func NewCollector() *Collector {
	return newCollector(prometheus.DefaultRegisterer)
}

func newCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		packetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "packets_ingested_total",
			Help:      "Packets ingested into the session window, by producer.",
		}, []string{"producer"}),
		anomaliesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "anomalies_total",
			Help:      "Packets classified as anomalous.",
		}),
		evictedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "packets_evicted_total",
			Help:      "Packets dropped from the ring buffer (oldest first).",
		}),
		remoteState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "backend_connected",
			Help:      "1 while the capture backend link is up.",
		}),
		streamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "stream_clients",
			Help:      "Dashboard WebSocket clients currently attached.",
		}),
	}
}

func (c *Collector) PacketIngested(p capture.Packet, fallback bool) {
	producer := "remote"
	if fallback {
		producer = "simulation"
	}
	c.packetsTotal.WithLabelValues(producer).Inc()
	if p.Prediction == capture.PredictionAnomaly {
		c.anomaliesTotal.Inc()
	}
}

func (c *Collector) PacketEvicted() {
	c.evictedTotal.Inc()
}

func (c *Collector) RemoteStatus(s capture.ConnStatus) {
	if s == capture.StatusConnected {
		c.remoteState.Set(1)
	} else {
		c.remoteState.Set(0)
	}
}

func (c *Collector) StreamClientConnected()    { c.streamClients.Inc() }
func (c *Collector) StreamClientDisconnected() { c.streamClients.Dec() }
