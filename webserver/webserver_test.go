package webserver

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/iidesho/evtship/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type item struct {
	ID string `json:"id"`
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(b)
}

func TestHealth(t *testing.T) {
	s := Init(0)
	status, body := get(t, s.App(), "/health")
	if status != 200 || !strings.Contains(body, `"status":"UP"`) {
		t.Errorf("health answered %d %s", status, body)
	}
	s.Health().AddCheck("index", func() error {
		return errors.New("disk full")
	})
	status, body = get(t, s.App(), "/health")
	if status != 503 || !strings.Contains(body, "disk full") {
		t.Errorf("failing check answered %d %s", status, body)
	}
}

func TestMetrics(t *testing.T) {
	metrics.Init()
	defer func() {
		metrics.Registry = nil
	}()
	c, err := metrics.Register(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evtship_webserver_test_total",
		Help: "test counter",
	}))
	if err != nil {
		t.Fatal(err)
	}
	c.Add(3)
	s := Init(0)
	status, body := get(t, s.App(), "/metrics")
	if status != 200 || !strings.Contains(body, "evtship_webserver_test_total 3") {
		t.Errorf("metrics answered %d %s", status, body)
	}
}

func TestMetricsDisabled(t *testing.T) {
	s := Init(0)
	if status, _ := get(t, s.App(), "/metrics"); status != 404 {
		t.Errorf("expected 404 without registry, got %d", status)
	}
}

func TestJSONList(t *testing.T) {
	s := Init(0)
	s.App().Get("/connections", JSONList(func() []item {
		return []item{{ID: "a"}, {ID: "b"}}
	}))
	status, body := get(t, s.App(), "/connections")
	if status != 200 || body != `[{"id":"a"},{"id":"b"}]` {
		t.Errorf("connections answered %d %s", status, body)
	}
}

func TestPanicRecover(t *testing.T) {
	s := Init(0)
	s.App().Get("/panic", func(c *fiber.Ctx) error {
		panic("TEST")
	})
	if status, _ := get(t, s.App(), "/panic"); status != 500 {
		t.Fatal("panic did not result in 500, got ", status)
	}
}
