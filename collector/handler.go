package collector

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	contextkeys "github.com/iidesho/evtship/contextKeys"
	"github.com/iidesho/evtship/wire"
)

// Connection is the bookkeeping of one live collector connection.
type Connection struct {
	ID     uuid.UUID
	Remote string
	Since  time.Time

	frames       atomic.Uint64
	decodeErrors atomic.Uint64
	ingestErrors atomic.Uint64
}

// ConnectionInfo is a point in time copy of a Connection.
type ConnectionInfo struct {
	ID           string    `json:"id"`
	Remote       string    `json:"remote"`
	Since        time.Time `json:"since"`
	Frames       uint64    `json:"frames"`
	DecodeErrors uint64    `json:"decode_errors"`
	IngestErrors uint64    `json:"ingest_errors"`
}

func NewConnection(remote string) *Connection {
	return &Connection{
		ID:     uuid.Must(uuid.NewV7()),
		Remote: remote,
		Since:  time.Now(),
	}
}

func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:           c.ID.String(),
		Remote:       c.Remote,
		Since:        c.Since,
		Frames:       c.frames.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		IngestErrors: c.ingestErrors.Load(),
	}
}

// Handler decodes the frames of one connection and hands the records to
// Sink in arrival order.
type Handler struct {
	Sink         IndexSink
	MaxFrameSize uint32
	Conn         *Connection
}

// Handle reads frames from r until the stream ends. A stream that ends at
// a frame boundary is not an error. A stream that ends inside a payload
// returns wire.ErrFrameTruncated. Undecodable payloads and sink failures
// are logged and skipped.
func (h Handler) Handle(ctx context.Context, r io.Reader) error {
	initMetrics()
	conn := h.Conn
	if conn == nil {
		conn = NewConnection(contextkeys.OriginFrom(ctx))
	}
	if contextkeys.ConnectionIDFrom(ctx) == "" {
		ctx = contextkeys.WithConnectionID(ctx, conn.ID.String())
	}
	br := bufio.NewReader(r)
	for {
		payload, err := wire.ReadFrame(br, h.MaxFrameSize)
		switch {
		case err == nil:
		case errors.Is(err, wire.ErrStreamEnd):
			log.Debug("stream ended", append(contextkeys.Attrs(ctx), "frames", conn.frames.Load())...)
			return nil
		case errors.Is(err, wire.ErrFrameTooLarge):
			conn.frames.Add(1)
			conn.decodeErrors.Add(1)
			framesTotal.Inc()
			decodeErrors.Inc()
			log.WithError(err).Error("discarding oversized frame", contextkeys.Attrs(ctx)...)
			continue
		case errors.Is(err, wire.ErrFrameTruncated):
			truncations.Inc()
			return err
		default:
			return err
		}
		conn.frames.Add(1)
		framesTotal.Inc()

		rec, err := wire.Decode(payload)
		if err != nil {
			conn.decodeErrors.Add(1)
			decodeErrors.Inc()
			log.WithError(err).Error("discarding undecodable frame", append(contextkeys.Attrs(ctx), "frame", conn.frames.Load(), "bytes", len(payload))...)
			continue
		}
		log.Trace("decoded record", append(contextkeys.Attrs(ctx), "record_number", rec.RecordNumber)...)
		if err := h.Sink.Ingest(ctx, rec); err != nil {
			conn.ingestErrors.Add(1)
			ingestErrors.Inc()
			log.WithError(err).Error("indexing record", append(contextkeys.Attrs(ctx), "record_number", rec.RecordNumber)...)
		}
	}
}
