package collector

import (
	"sync"

	"github.com/iidesho/evtship/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce       sync.Once
	activeConnections prometheus.Gauge
	framesTotal       prometheus.Counter
	decodeErrors      prometheus.Counter
	ingestErrors      prometheus.Counter
	truncations       prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		activeConnections, err = metrics.Register(prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evtship_collector_connections_active",
			Help: "open forwarder connections",
		}))
		log.WithError(err).Warning("registering connection gauge")
		framesTotal, err = metrics.Register(counter("evtship_collector_frames_total", "frames read"))
		log.WithError(err).Warning("registering frame counter")
		decodeErrors, err = metrics.Register(counter("evtship_collector_decode_errors_total", "frames discarded as undecodable"))
		log.WithError(err).Warning("registering decode error counter")
		ingestErrors, err = metrics.Register(counter("evtship_collector_ingest_errors_total", "records the index sink rejected"))
		log.WithError(err).Warning("registering ingest error counter")
		truncations, err = metrics.Register(counter("evtship_collector_truncations_total", "connections that ended inside a frame"))
		log.WithError(err).Warning("registering truncation counter")
	})
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: help,
	})
}
