package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/iidesho/bragi/sbragi"
	"github.com/iidesho/evtship/config"
	"github.com/iidesho/evtship/eventlog"
	_ "github.com/iidesho/evtship/eventlog/filelog"
	_ "github.com/iidesho/evtship/eventlog/inmemory"
	_ "github.com/iidesho/evtship/eventlog/winlog"
	"github.com/iidesho/evtship/forwarder"
	"github.com/iidesho/evtship/metrics"
	"github.com/iidesho/evtship/tailer"
	"github.com/iidesho/evtship/webserver/health"
)

func defaultKind() string {
	if runtime.GOOS == "windows" {
		return string(eventlog.KindWindows)
	}
	return string(eventlog.KindFile)
}

func must[T any](v T, err error) T {
	if err != nil {
		sbragi.WithError(err).Fatal("reading config")
	}
	return v
}

func main() {
	config.Load()
	health.Name = "evtship-forwarder"

	collector := flag.String("collector", config.String("collector.address", "127.0.0.1:8080"), "collector address")
	kind := flag.String("kind", config.String("source.kind", defaultKind()), fmt.Sprintf("event source kind, one of %v", eventlog.Kinds()))
	name := flag.String("name", config.String("source.name", "System"), "event log name, or file path for the file kind")
	backoff := flag.Duration("backoff", must(config.Duration("tailer.backoff", tailer.DefaultBackoff)), "wait after catching up with the source")
	bufferSize := flag.Int("buffer", must(config.Size("tailer.buffer_size", tailer.DefaultBufferSize)), "initial read buffer size")
	maxBufferSize := flag.Int("max-buffer", must(config.Size("tailer.max_buffer_size", tailer.DefaultMaxBufferSize)), "largest read buffer")
	dialTimeout := flag.Duration("dial-timeout", must(config.Duration("forwarder.dial_timeout", 10*time.Second)), "collector connect timeout")
	pushURL := flag.String("push", config.String("metrics.push_url", ""), "pushgateway url, empty disables metrics")
	pushInterval := flag.Duration("push-interval", must(config.Duration("metrics.push_interval", 15*time.Second)), "metrics push interval")
	flag.Parse()

	err := config.SetupLogging(health.Name)
	if err != nil {
		sbragi.WithError(err).Fatal("setting up logging")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pushURL != "" {
		metrics.Init()
		go metrics.Push(ctx, *pushURL, health.Name, *pushInterval)
	}

	err = forwarder.Session{
		Kind:        eventlog.Kind(*kind),
		Name:        *name,
		Address:     *collector,
		DialTimeout: *dialTimeout,
		Tailer: []tailer.Option{
			tailer.WithBackoff(*backoff),
			tailer.WithBufferSize(*bufferSize),
			tailer.WithMaxBufferSize(*maxBufferSize),
		},
	}.Run(ctx)
	if err != nil {
		sbragi.WithError(err).Error("forwarder stopped", "kind", *kind, "name", *name, "collector", *collector)
		stop()
		os.Exit(1)
	}
}
