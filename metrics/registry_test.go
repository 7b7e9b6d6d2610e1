package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterReusesExisting(t *testing.T) {
	Init()
	defer func() { Registry = nil }()
	opts := prometheus.CounterOpts{Name: "evtship_test_total", Help: "test counter"}
	a, err := Register(prometheus.NewCounter(opts))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Register(prometheus.NewCounter(opts))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected the already registered counter back")
	}
}

func TestRegisterWithoutRegistry(t *testing.T) {
	Registry = nil
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "evtship_noop_total", Help: "noop"})
	got, err := Register(c)
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Error("expected the given collector back")
	}
}
