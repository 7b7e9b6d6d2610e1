package metrics

import (
	"context"
	"os"
	"time"

	"github.com/iidesho/bragi/sbragi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	log      = sbragi.WithLocalScope(sbragi.LevelInfo)
	Registry *prometheus.Registry
)

// Init creates the registry. Collectors are only registered by components
// created after Init, so call it first thing in main.
func Init() {
	Registry = prometheus.NewRegistry()
}

// Register registers c on the registry, reusing an already registered
// collector with the same description. It returns c unchanged when metrics
// are disabled.
func Register[T prometheus.Collector](c T) (T, error) {
	if Registry == nil {
		return c, nil
	}
	err := Registry.Register(c)
	if err == nil {
		return c, nil
	}
	are, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		return c, err
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return c, err
	}
	return existing, nil
}

// Push sends the registry to a pushgateway every interval until ctx is done.
func Push(ctx context.Context, url, job string, interval time.Duration) {
	if Registry == nil {
		log.Info("metrics disabled, not pushing", "url", url)
		return
	}
	pusher := push.New(url, job).Gatherer(Registry)
	hn, err := os.Hostname()
	if !log.WithError(err).Error("getting hostname for metrics push") {
		pusher = pusher.Grouping("instance", hn)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.WithError(pusher.Push()).Warning("final metrics push", "url", url)
			return
		case <-t.C:
			log.WithError(pusher.Push()).Warning("pushing metrics", "url", url)
		}
	}
}
