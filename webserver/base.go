// Package webserver is the collector's admin HTTP surface.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/iidesho/bragi/sbragi"
	"github.com/iidesho/evtship/metrics"
	"github.com/iidesho/evtship/webserver/health"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

var json = jsoniter.Config{
	IndentionStep:                 0,
	MarshalFloatWith6Digits:       true,
	EscapeHTML:                    true,
	SortMapKeys:                   false,
	UseNumber:                     true,
	DisallowUnknownFields:         true,
	OnlyTaggedField:               true,
	ValidateJsonRawMessage:        true,
	ObjectFieldMustBeSimpleString: false,
	CaseSensitive:                 false,
}.Froze()

type Server struct {
	r      *fiber.App
	health *health.Health
	port   uint16
}

// Init builds the admin app with /health, /metrics and, when debug.user
// and debug.pass are set, /debug/pprof behind basic auth.
func Init(port uint16) *Server {
	s := &Server{
		r: fiber.New(fiber.Config{
			AppName:               health.Name,
			DisableStartupMessage: true,
			JSONDecoder:           json.Unmarshal,
			JSONEncoder:           json.Marshal,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				status := http.StatusInternalServerError
				var e *fiber.Error
				if errors.As(err, &e) {
					status = e.Code
				}
				err = c.Status(status).JSON(map[string]interface{}{
					"status":      status,
					"status_text": http.StatusText(status),
					"error_msg":   err.Error(),
				})
				if err != nil {
					return c.Status(fiber.StatusInternalServerError).
						SendString("Internal Server Error")
				}
				return nil
			},
		}),
		health: health.Init(),
		port:   port,
	}
	s.r.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	s.r.Use(func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r != nil {
				log.Error("recovered handler panic", "path", c.Path(), "panic", r)
				err = errors.Join(
					err,
					fmt.Errorf("recoverd: %v, stack: %s", r, string(debug.Stack())),
					c.SendStatus(http.StatusInternalServerError),
				)
			}
		}()
		return c.Next()
	})
	s.r.Get("/health", s.health.WriteHealthReport)
	s.r.Get("/metrics", func(c *fiber.Ctx) error {
		if metrics.Registry == nil {
			return fiber.NewError(fiber.StatusNotFound, "metrics disabled")
		}
		return adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))(c)
	})

	user := os.Getenv("debug.user")
	pass := os.Getenv("debug.pass")
	if user != "" && pass != "" {
		d := s.r.Group("/debug")
		d.Use(basicauth.New(basicauth.Config{
			Users: map[string]string{user: pass},
		}))
		d.Get("/pprof/*", func(c *fiber.Ctx) error {
			switch c.Params("*") {
			case "profile":
				return adaptor.HTTPHandlerFunc(pprof.Profile)(c)
			case "trace":
				return adaptor.HTTPHandlerFunc(pprof.Trace)(c)
			case "symbol":
				return adaptor.HTTPHandlerFunc(pprof.Symbol)(c)
			default:
				return adaptor.HTTPHandlerFunc(pprof.Index)(c)
			}
		})
	}
	return s
}

func (s *Server) App() *fiber.App {
	return s.r
}

func (s *Server) Health() *health.Health {
	return s.health
}

func (s *Server) Port() uint16 {
	return s.port
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		log.WithError(s.r.Shutdown()).Debug("shutting down admin server")
	})
	defer stop()
	log.Info("admin server listening", "port", s.port)
	err := s.r.Listen(fmt.Sprintf(":%d", s.port))
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// JSONList answers with the current result of list.
func JSONList[T any](list func() []T) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(list())
	}
}
