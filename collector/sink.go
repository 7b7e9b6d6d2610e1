package collector

import (
	"context"

	contextkeys "github.com/iidesho/evtship/contextKeys"
	"github.com/iidesho/evtship/wire"
)

// IndexSink receives every record the collector decodes. It is shared by
// all connections and must be safe for concurrent use. The origin of a
// record is in ctx, see contextkeys.OriginFrom.
type IndexSink interface {
	Ingest(ctx context.Context, r wire.Record) error
}

type SinkFunc func(ctx context.Context, r wire.Record) error

func (f SinkFunc) Ingest(ctx context.Context, r wire.Record) error {
	return f(ctx, r)
}

// LogSink logs every record at info level.
type LogSink struct{}

func (LogSink) Ingest(ctx context.Context, r wire.Record) error {
	log.Info("event record",
		"origin", contextkeys.OriginFrom(ctx),
		"connection", contextkeys.ConnectionIDFrom(ctx),
		"record_number", r.RecordNumber,
		"event_id", r.EventID,
		"category", r.EventCategory,
		"time_generated", r.TimeGenerated,
		"time_written", r.TimeWritten,
		"strings", r.NumStrings,
		"length", r.Length,
	)
	return nil
}
