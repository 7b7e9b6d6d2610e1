package tailer

import (
	"sync"

	"github.com/iidesho/evtship/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce   sync.Once
	reads         *prometheus.CounterVec
	bufferBytes   prometheus.Gauge
	lastDelivered prometheus.Gauge
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		reads, err = metrics.Register(prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evtship_tailer_reads_total",
			Help: "event source reads by outcome",
		}, []string{"status"}))
		log.WithError(err).Warning("registering tailer read counter")
		bufferBytes, err = metrics.Register(prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evtship_tailer_buffer_bytes",
			Help: "size of the tailer read buffer",
		}))
		log.WithError(err).Warning("registering tailer buffer gauge")
		lastDelivered, err = metrics.Register(prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evtship_tailer_last_delivered",
			Help: "record number of the last delivered record",
		}))
		log.WithError(err).Warning("registering tailer cursor gauge")
	})
}
