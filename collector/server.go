// Package collector accepts forwarder connections and decodes their frame
// streams into an IndexSink, one handler per connection.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iidesho/bragi/sbragi"
	contextkeys "github.com/iidesho/evtship/contextKeys"
	"github.com/iidesho/evtship/syncmap"
	"github.com/iidesho/evtship/wire"
	perrors "github.com/pkg/errors"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

var ErrListenerClosed = errors.New("collector: listener closed")

type Option func(*Server)

// WithMaxFrameSize bounds the payload size a connection may declare.
func WithMaxFrameSize(n uint32) Option {
	return func(s *Server) {
		s.maxFrameSize = n
	}
}

type Server struct {
	ln           net.Listener
	sink         IndexSink
	maxFrameSize uint32
	conns        syncmap.SyncMap[*Connection]
	handlers     sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
	stopped      atomic.Bool
}

// Listen binds addr. Connections are accepted once Serve is called.
func Listen(addr string, sink IndexSink, opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, perrors.Wrapf(err, "listening on %s", addr)
	}
	s := &Server{
		ln:           ln,
		sink:         sink,
		maxFrameSize: wire.DefaultMaxFrameSize,
		conns:        syncmap.New[*Connection](),
	}
	for _, opt := range opts {
		opt(s)
	}
	initMetrics()
	log.Info("collector listening", "address", ln.Addr().String(), "max_frame_size", s.maxFrameSize)
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done or the server is closed,
// then waits for the open connections to wind down.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		log.WithError(s.Close()).Debug("closing listener on shutdown")
	})
	defer stop()
	var tempDelay time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.handlers.Wait()
				log.Info("collector stopped", "address", s.ln.Addr().String())
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = min(max(2*tempDelay, 5*time.Millisecond), time.Second)
				log.WithError(err).Warning("accepting connection, retrying", "in", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			s.stopped.Store(true)
			s.handlers.Wait()
			return perrors.Wrap(err, "accepting connection")
		}
		tempDelay = 0
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	c := NewConnection(conn.RemoteAddr().String())
	origin := c.Remote
	if host, _, err := net.SplitHostPort(c.Remote); err == nil {
		origin = host
	}
	id := c.ID.String()
	s.conns.Set(id, c)
	activeConnections.Inc()
	defer func() {
		s.conns.Delete(id)
		activeConnections.Dec()
	}()
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer func() {
		err := conn.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.WithError(err).Warning("closing connection", "connection", id)
		}
	}()

	log.Info("connection accepted", "connection", id, "remote", c.Remote)
	ctx = contextkeys.WithConnectionID(contextkeys.WithOrigin(ctx, origin), id)
	err := Handler{
		Sink:         s.sink,
		MaxFrameSize: s.maxFrameSize,
		Conn:         c,
	}.Handle(ctx, conn)
	switch {
	case err == nil:
		log.Info("connection closed", "connection", id, "remote", c.Remote, "frames", c.frames.Load())
	case ctx.Err() != nil:
		log.Info("connection closed on shutdown", "connection", id, "remote", c.Remote)
	default:
		log.WithError(err).Error("connection failed", "connection", id, "remote", c.Remote, "frames", c.frames.Load())
	}
}

// Connections returns the live connections ordered by when they were
// accepted.
func (s *Server) Connections() []ConnectionInfo {
	conns := s.conns.GetMap()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Close stops accepting connections. Open connections are left to end on
// their own, or with the context passed to Serve.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
		s.closeErr = s.ln.Close()
	})
	return s.closeErr
}

// Check reports whether the server still accepts connections.
func (s *Server) Check() error {
	if s.stopped.Load() {
		return fmt.Errorf("%w: %s", ErrListenerClosed, s.ln.Addr())
	}
	return nil
}
