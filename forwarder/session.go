package forwarder

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/iidesho/evtship/eventlog"
	"github.com/iidesho/evtship/tailer"
)

// Session is one forwarder process run: one source, one tailer and one
// collector connection.
type Session struct {
	Kind        eventlog.Kind
	Name        string
	Address     string
	DialTimeout time.Duration
	Tailer      []tailer.Option
}

// Run opens the source, connects to the collector and forwards until a
// fatal error or ctx is done. Cancellation is not an error. The source and
// connection are released on every return.
func (s Session) Run(ctx context.Context) error {
	id := uuid.Must(uuid.NewV7())
	log.Info("starting forwarder session", "session", id, "kind", s.Kind, "name", s.Name, "collector", s.Address)
	t, err := tailer.Open(ctx, s.Kind, s.Name, s.Tailer...)
	if err != nil {
		return err
	}
	defer func() {
		log.WithError(t.Close()).Debug("releasing event source", "session", id)
	}()
	conn, err := Dial(ctx, s.Address, s.DialTimeout)
	if err != nil {
		return err
	}
	defer func() {
		log.WithError(conn.Close()).Debug("closing collector connection", "session", id)
	}()

	err = New(t, conn).Run(ctx)
	c := t.Cursor()
	if errors.Is(err, context.Canceled) {
		log.Info("forwarder session stopped", "session", id, "last_delivered", c.LastDelivered)
		return nil
	}
	log.WithError(err).Error("forwarder session ended", "session", id, "last_delivered", c.LastDelivered)
	return err
}
