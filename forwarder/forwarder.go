// Package forwarder ships the records a tailer yields to a collector as
// length prefixed frames.
package forwarder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/iidesho/bragi/sbragi"
	"github.com/iidesho/evtship/eventlog"
	"github.com/iidesho/evtship/tailer"
	"github.com/iidesho/evtship/wire"
	perrors "github.com/pkg/errors"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

var ErrTransport = errors.New("forwarder: transport failure")

// Dial connects to the collector at addr.
func Dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, perrors.Wrapf(err, "dialing collector %s", addr))
	}
	log.Info("connected to collector", "address", addr, "local", conn.LocalAddr().String())
	return conn, nil
}

type Forwarder struct {
	tailer *tailer.Tailer
	conn   io.Writer
}

func New(t *tailer.Tailer, conn io.Writer) *Forwarder {
	initMetrics()
	return &Forwarder{
		tailer: t,
		conn:   conn,
	}
}

// Run sends every record the tailer yields until the tailer fails, a
// write fails or ctx is done. A record is acknowledged to the tailer only
// after its frame is flushed.
func (f *Forwarder) Run(ctx context.Context) error {
	for r, err := range f.tailer.Records(ctx) {
		if err != nil {
			return err
		}
		if err := f.send(r); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (f *Forwarder) send(r eventlog.Record) error {
	frame, err := wire.Encode(r.Wire())
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(f.conn, wire.PrefixSize+len(frame.Payload))
	n, err := frame.WriteTo(w)
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, perrors.Wrapf(err, "sending record %d", r.RecordNumber))
	}
	frames.Inc()
	sent.Add(float64(n))
	log.Trace("sent record", "record_number", r.RecordNumber, "event_id", r.EventID, "bytes", n)
	return nil
}
