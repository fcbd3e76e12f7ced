package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sentinelids/sentinel/capture"
)

func TestCollectorCountsByProducer(t *testing.T) {
	c := newCollector(prometheus.NewRegistry())

	anomaly := capture.Packet{Prediction: capture.PredictionAnomaly}
	normal := capture.Packet{Prediction: capture.PredictionNormal}

	c.PacketIngested(normal, true)
	c.PacketIngested(normal, true)
	c.PacketIngested(anomaly, false)

	if got := testutil.ToFloat64(c.packetsTotal.WithLabelValues("simulation")); got != 2 {
		t.Errorf("simulation packets = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.packetsTotal.WithLabelValues("remote")); got != 1 {
		t.Errorf("remote packets = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.anomaliesTotal); got != 1 {
		t.Errorf("anomalies = %v, want 1", got)
	}
}

func TestCollectorEvictionsAndGauges(t *testing.T) {
	c := newCollector(prometheus.NewRegistry())

	c.PacketEvicted()
	c.PacketEvicted()
	if got := testutil.ToFloat64(c.evictedTotal); got != 2 {
		t.Errorf("evicted = %v, want 2", got)
	}

	c.RemoteStatus(capture.StatusConnected)
	if got := testutil.ToFloat64(c.remoteState); got != 1 {
		t.Errorf("backend_connected = %v, want 1", got)
	}
	c.RemoteStatus(capture.StatusDisconnected)
	if got := testutil.ToFloat64(c.remoteState); got != 0 {
		t.Errorf("backend_connected = %v, want 0", got)
	}

	c.StreamClientConnected()
	c.StreamClientConnected()
	c.StreamClientDisconnected()
	if got := testutil.ToFloat64(c.streamClients); got != 1 {
		t.Errorf("stream_clients = %v, want 1", got)
	}
}
