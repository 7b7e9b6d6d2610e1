package health

import (
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/iidesho/bragi/sbragi"
)

var Version string
var BuildTime string
var Name string

// Check reports the state of one part of the service, nil means healthy.
type Check func() error

type Health struct {
	IP     net.IP
	Since  time.Time
	lock   sync.RWMutex
	checks map[string]Check
}

func Init() *Health {
	return &Health{
		IP:     GetOutboundIP(),
		Since:  time.Now(),
		checks: map[string]Check{},
	}
}

// AddCheck registers a named check that is run for every report.
func (h *Health) AddCheck(name string, c Check) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.checks[name] = c
}

type Report struct {
	Status    string            `json:"status"`
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	BuildTime string            `json:"build_time"`
	IP        net.IP            `json:"ip"`
	Since     time.Time         `json:"running_since"`
	Now       time.Time         `json:"now"`
	Checks    map[string]string `json:"checks,omitempty"`
}

var (
	ipOnce sync.Once
	ip     net.IP
)

func GetOutboundIP() net.IP {
	ipOnce.Do(func() {
		conn, err := net.Dial("udp", "8.8.8.8:80")
		if err != nil {
			log.WithError(err).Warning("unable to get outbound ip")
			return
		}
		defer conn.Close()
		ip = conn.LocalAddr().(*net.UDPAddr).IP
	})
	return ip
}

func (h *Health) GetHealthReport() Report {
	r := Report{
		Status:    "UP",
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		IP:        h.IP,
		Since:     h.Since,
		Now:       time.Now(),
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for name, c := range h.checks {
		if r.Checks == nil {
			r.Checks = map[string]string{}
		}
		if err := c(); err != nil {
			r.Status = "DOWN"
			r.Checks[name] = err.Error()
			continue
		}
		r.Checks[name] = "UP"
	}
	return r
}

// WriteHealthReport answers with the report, 503 when a check fails.
func (h *Health) WriteHealthReport(c *fiber.Ctx) error {
	r := h.GetHealthReport()
	if r.Status != "UP" {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(r)
}
