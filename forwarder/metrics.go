package forwarder

import (
	"sync"

	"github.com/iidesho/evtship/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	frames      prometheus.Counter
	sent        prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		frames, err = metrics.Register(prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evtship_forwarder_frames_total",
			Help: "frames flushed to the collector",
		}))
		log.WithError(err).Warning("registering forwarder frame counter")
		sent, err = metrics.Register(prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evtship_forwarder_bytes_total",
			Help: "bytes flushed to the collector, prefixes included",
		}))
		log.WithError(err).Warning("registering forwarder byte counter")
	})
}
