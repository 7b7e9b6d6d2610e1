package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/iidesho/bragi/sbragi"
	"github.com/iidesho/evtship/collector"
	"github.com/iidesho/evtship/config"
	"github.com/iidesho/evtship/metrics"
	"github.com/iidesho/evtship/storage"
	"github.com/iidesho/evtship/storage/badgerstore"
	"github.com/iidesho/evtship/webserver"
	"github.com/iidesho/evtship/webserver/health"
	"github.com/iidesho/evtship/wire"
)

type sink interface {
	collector.IndexSink
	io.Closer
	Check() error
}

type logSink struct {
	collector.LogSink
}

func (logSink) Close() error {
	return nil
}

func (logSink) Check() error {
	return nil
}

func openSink(backend, dir string) (sink, error) {
	switch backend {
	case "log":
		return logSink{}, nil
	case "nutsdb":
		return storage.Open(dir)
	case "badger":
		return badgerstore.Open(dir)
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		sbragi.WithError(err).Fatal("reading config")
	}
	return v
}

func main() {
	config.Load()
	health.Name = "evtship-collector"

	listen := flag.String("listen", config.String("listen.address", "127.0.0.1:8080"), "address to accept forwarders on")
	adminPort := flag.Uint("admin-port", uint(must(config.Uint16("admin.port", 0))), "admin http port, 0 disables it")
	backend := flag.String("index", config.String("index.backend", "nutsdb"), "index backend: log, nutsdb or badger")
	dir := flag.String("index-dir", config.String("index.dir", "./index"), "index directory")
	maxFrame := flag.Int("max-frame", must(config.Size("wire.max_frame_size", wire.DefaultMaxFrameSize)), "largest accepted frame payload")
	flag.Parse()

	err := config.SetupLogging(health.Name)
	if err != nil {
		sbragi.WithError(err).Fatal("setting up logging")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *adminPort > 0 {
		metrics.Init()
	}
	idx, err := openSink(*backend, *dir)
	if err != nil {
		sbragi.WithError(err).Fatal("opening index", "backend", *backend, "dir", *dir)
	}

	srv, err := collector.Listen(*listen, idx, collector.WithMaxFrameSize(uint32(*maxFrame)))
	if err != nil {
		sbragi.WithError(err).Fatal("starting collector", "address", *listen)
	}

	if *adminPort > 0 {
		admin := webserver.Init(uint16(*adminPort))
		admin.App().Get("/connections", webserver.JSONList(srv.Connections))
		admin.Health().AddCheck("listener", srv.Check)
		admin.Health().AddCheck("index", idx.Check)
		go func() {
			sbragi.WithError(admin.Run(ctx)).Error("admin server stopped", "port", admin.Port())
		}()
	}

	err = srv.Serve(ctx)
	sbragi.WithError(idx.Close()).Error("closing index", "backend", *backend)
	if err != nil {
		sbragi.WithError(err).Error("collector stopped", "address", *listen)
		stop()
		os.Exit(1)
	}
}
