package collector

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	contextkeys "github.com/iidesho/evtship/contextKeys"
	"github.com/iidesho/evtship/wire"
)

func record(number uint32) wire.Record {
	return wire.Record{
		Length:        120,
		Reserved:      wire.RecordMagic,
		RecordNumber:  number,
		TimeGenerated: 1700000000,
		TimeWritten:   1700000000,
		EventID:       7,
		NumStrings:    1,
		StringOffset:  96,
		DataLength:    8,
		DataOffset:    108,
	}
}

func frame(t *testing.T, number uint32) []byte {
	t.Helper()
	f, err := wire.Encode(record(number))
	if err != nil {
		t.Fatal(err)
	}
	return f.Bytes()
}

// corrupt flips one byte of the magic inside the payload.
func corrupt(b []byte) []byte {
	b[wire.PrefixSize+4] ^= 0xff
	return b
}

type recorder struct {
	lock    sync.Mutex
	records []wire.Record
	origins []string
	ids     []string
	added   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{added: make(chan struct{}, 100)}
}

func (r *recorder) Ingest(ctx context.Context, rec wire.Record) error {
	r.lock.Lock()
	r.records = append(r.records, rec)
	r.origins = append(r.origins, contextkeys.OriginFrom(ctx))
	r.ids = append(r.ids, contextkeys.ConnectionIDFrom(ctx))
	r.lock.Unlock()
	r.added <- struct{}{}
	return nil
}

func (r *recorder) numbers() []uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []uint32
	for _, rec := range r.records {
		out = append(out, rec.RecordNumber)
	}
	return out
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for range n {
		select {
		case <-r.added:
		case <-timeout:
			t.Fatalf("timed out waiting for %d records, got %v", n, r.numbers())
		}
	}
}

func TestHandlerSkipsCorruptFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(frame(t, 1))
	stream.Write(corrupt(frame(t, 2)))
	stream.Write(frame(t, 3))
	sink := newRecorder()
	c := NewConnection("test")
	err := Handler{Sink: sink, Conn: c}.Handle(context.Background(), &stream)
	if err != nil {
		t.Fatal(err)
	}
	got := sink.numbers()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("got records %v", got)
	}
	info := c.Info()
	if info.Frames != 3 || info.DecodeErrors != 1 {
		t.Errorf("unexpected stats %+v", info)
	}
	if sink.ids[0] != info.ID {
		t.Errorf("record tagged with connection %q, expected %q", sink.ids[0], info.ID)
	}
}

func TestHandlerTruncation(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(frame(t, 1))
	stream.Write(frame(t, 2)[:20])
	sink := newRecorder()
	err := Handler{Sink: sink}.Handle(context.Background(), &stream)
	if !errors.Is(err, wire.ErrFrameTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
	if got := sink.numbers(); len(got) != 1 || got[0] != 1 {
		t.Errorf("got records %v", got)
	}
}

func TestHandlerEndsInsidePrefix(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(frame(t, 1))
	stream.Write([]byte{0, 0})
	sink := newRecorder()
	if err := (Handler{Sink: sink}).Handle(context.Background(), &stream); err != nil {
		t.Errorf("expected clean end, got %v", err)
	}
}

func TestHandlerOversizedFrame(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0, 0, 1, 0})
	stream.Write(make([]byte, 256))
	stream.Write(frame(t, 9))
	sink := newRecorder()
	c := NewConnection("test")
	err := Handler{Sink: sink, MaxFrameSize: 128, Conn: c}.Handle(context.Background(), &stream)
	if err != nil {
		t.Fatal(err)
	}
	if got := sink.numbers(); len(got) != 1 || got[0] != 9 {
		t.Errorf("got records %v", got)
	}
	if c.Info().DecodeErrors != 1 {
		t.Errorf("oversized frame not counted")
	}
}

func TestHandlerIngestErrorsContinue(t *testing.T) {
	var stream bytes.Buffer
	for i := uint32(1); i <= 3; i++ {
		stream.Write(frame(t, i))
	}
	var seen []uint32
	sink := SinkFunc(func(_ context.Context, r wire.Record) error {
		seen = append(seen, r.RecordNumber)
		if r.RecordNumber == 2 {
			return errors.New("index full")
		}
		return nil
	})
	c := NewConnection("test")
	if err := (Handler{Sink: sink, Conn: c}).Handle(context.Background(), &stream); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 {
		t.Errorf("sink saw %v", seen)
	}
	if c.Info().IngestErrors != 1 {
		t.Errorf("ingest error not counted")
	}
}

func serve(t *testing.T, sink IndexSink) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	s, err := Listen("127.0.0.1:0", sink)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx)
	}()
	return s, cancel, done
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestCorruptFrameOverTCP(t *testing.T) {
	sink := newRecorder()
	s, cancel, done := serve(t, sink)
	defer cancel()

	conn := dial(t, s)
	var b []byte
	b = append(b, frame(t, 1)...)
	b = append(b, corrupt(frame(t, 2))...)
	b = append(b, frame(t, 3)...)
	if _, err := conn.Write(b); err != nil {
		t.Fatal(err)
	}
	sink.wait(t, 2)
	if got := sink.numbers(); got[0] != 1 || got[1] != 3 {
		t.Errorf("got records %v", got)
	}
	if origin := sink.origins[0]; origin != "127.0.0.1" {
		t.Errorf("origin %q, expected the host without a port", origin)
	}
	conns := s.Connections()
	if len(conns) != 1 || conns[0].Frames != 3 || conns[0].DecodeErrors != 1 {
		t.Errorf("unexpected connections %+v", conns)
	}
	if len(conns) == 1 {
		if conns[0].Remote != conn.LocalAddr().String() {
			t.Errorf("remote %q, expected %q", conns[0].Remote, conn.LocalAddr().String())
		}
		if sink.ids[0] != conns[0].ID {
			t.Errorf("record tagged with connection %q, expected %q", sink.ids[0], conns[0].ID)
		}
	}
	conn.Close()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("serve returned %v", err)
	}
}

func TestConnectionIsolation(t *testing.T) {
	release := make(chan struct{})
	inner := newRecorder()
	sink := SinkFunc(func(ctx context.Context, r wire.Record) error {
		if r.RecordNumber >= 100 {
			<-release
		}
		return inner.Ingest(ctx, r)
	})
	s, cancel, done := serve(t, sink)
	defer cancel()

	slow := dial(t, s)
	defer slow.Close()
	if _, err := slow.Write(append(frame(t, 100), corrupt(frame(t, 101))...)); err != nil {
		t.Fatal(err)
	}
	// Let the slow connection block in the sink first.
	time.Sleep(20 * time.Millisecond)

	fast := dial(t, s)
	defer fast.Close()
	if _, err := fast.Write(append(frame(t, 1), frame(t, 2)...)); err != nil {
		t.Fatal(err)
	}
	inner.wait(t, 2)
	if got := inner.numbers(); got[0] != 1 || got[1] != 2 {
		t.Errorf("fast connection got %v", got)
	}

	close(release)
	if _, err := slow.Write(frame(t, 102)); err != nil {
		t.Fatal(err)
	}
	inner.wait(t, 2)
	if got := inner.numbers(); len(got) != 4 || got[2] != 100 || got[3] != 102 {
		t.Errorf("slow connection got %v", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("serve returned %v", err)
	}
}

func TestServeStopsWithOpenConnections(t *testing.T) {
	s, cancel, done := serve(t, LogSink{})
	conn := dial(t, s)
	defer conn.Close()
	if _, err := conn.Write(frame(t, 1)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(s.Connections()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.Check(); err != nil {
		t.Errorf("serving collector unhealthy: %v", err)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	if n := len(s.Connections()); n != 0 {
		t.Errorf("%d connections left after shutdown", n)
	}
	if err := s.Check(); !errors.Is(err, ErrListenerClosed) {
		t.Errorf("expected closed listener, got %v", err)
	}
}
