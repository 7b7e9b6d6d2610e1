// Package tailer follows a live event source from the end of the backlog
// present at startup, handing every new record to its consumer and moving
// the cursor only once the consumer is done with a record.
package tailer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/iidesho/bragi/sbragi"
	"github.com/iidesho/evtship/eventlog"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

const (
	DefaultBackoff       = time.Second
	DefaultBufferSize    = 64 << 10
	DefaultMaxBufferSize = 1 << 20
)

var (
	ErrBufferLimit = errors.New("tailer: record does not fit in max buffer size")
	ErrClosed      = errors.New("tailer: closed")
)

type State uint8

const (
	Init State = iota
	Seeking
	Draining
	Polling
	Failed
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Seeking:
		return "seeking"
	case Draining:
		return "draining"
	case Polling:
		return "polling"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Cursor is the tailer's bookmark. LastDelivered starts at the newest
// record present when the session began.
type Cursor struct {
	OldestAvailable uint32
	TotalAvailable  uint32
	LastDelivered   uint32
}

// Next is the record number the next read starts at.
func (c Cursor) Next() uint32 {
	return c.LastDelivered + 1
}

type options struct {
	backoff       time.Duration
	bufferSize    int
	maxBufferSize int
}

type Option func(*options)

// WithBackoff sets how long to wait after the source reports it has no
// more records.
func WithBackoff(d time.Duration) Option {
	return func(o *options) {
		o.backoff = d
	}
}

func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

func WithMaxBufferSize(n int) Option {
	return func(o *options) {
		o.maxBufferSize = n
	}
}

type Tailer struct {
	src  eventlog.Source
	opts options

	lock   sync.Mutex
	state  State
	cursor Cursor
	err    error

	buf    []byte
	filled int

	closeOnce sync.Once
	closeErr  error
}

// Open opens the named source and starts a tailer on it. The source is
// closed again if the tailer can not be started.
func Open(ctx context.Context, kind eventlog.Kind, name string, opts ...Option) (*Tailer, error) {
	src, err := eventlog.Open(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	t, err := New(src, opts...)
	if err != nil {
		log.WithError(src.Close()).Warning("closing source after failed start", "kind", kind, "name", name)
		return nil, err
	}
	log.Info("tailing event source", "kind", kind, "name", name, "from", t.cursor.Next())
	return t, nil
}

// New queries the bounds of src and positions the cursor right after the
// newest record it holds.
func New(src eventlog.Source, opts ...Option) (*Tailer, error) {
	o := options{
		backoff:       DefaultBackoff,
		bufferSize:    DefaultBufferSize,
		maxBufferSize: DefaultMaxBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bufferSize <= 0 {
		o.bufferSize = DefaultBufferSize
	}
	if o.maxBufferSize < o.bufferSize {
		o.maxBufferSize = o.bufferSize
	}
	b, err := src.Bounds()
	if err != nil {
		return nil, fmt.Errorf("%w: querying bounds: %w", eventlog.ErrOpen, err)
	}
	t := &Tailer{
		src:   src,
		opts:  o,
		state: Init,
		cursor: Cursor{
			OldestAvailable: b.Oldest,
			TotalAvailable:  b.Total,
			LastDelivered:   b.Oldest + b.Total - 1,
		},
		buf: make([]byte, o.bufferSize),
	}
	initMetrics()
	bufferBytes.Set(float64(len(t.buf)))
	lastDelivered.Set(float64(t.cursor.LastDelivered))
	t.setState(Seeking)
	return t, nil
}

// Records yields every record appended to the source after the cursor.
// The sequence only ends with an error, or when the consumer stops. The
// cursor moves past a record when the consumer's loop body has completed
// for it; a record the consumer stopped on is yielded again by the next
// call. After an error the tailer is Failed and its source closed.
func (t *Tailer) Records(ctx context.Context) iter.Seq2[eventlog.Record, error] {
	return func(yield func(eventlog.Record, error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				t.fail(err)
				yield(eventlog.Record{}, err)
				return
			}
			switch t.State() {
			case Seeking:
				t.seek()
			case Draining:
				if !t.drain(yield) {
					return
				}
			case Polling:
				if sleep(ctx, t.opts.backoff) == nil {
					t.setState(Seeking)
				}
			default:
				yield(eventlog.Record{}, t.Err())
				return
			}
		}
	}
}

func (t *Tailer) seek() {
	from := t.Cursor().Next()
	res := t.src.ReadNext(from, t.buf)
	reads.WithLabelValues(res.Status.String()).Inc()
	if res.Status != eventlog.ReadOK && !res.Status.Transient() {
		err := res.Err
		if err == nil {
			err = eventlog.ErrRead
		}
		t.fail(err)
		return
	}
	switch res.Status {
	case eventlog.ReadNeedLargerBuffer:
		if err := t.grow(res.MinSize); err != nil {
			t.fail(err)
		}
	case eventlog.ReadOK:
		if res.N <= 0 {
			t.setState(Polling)
			return
		}
		t.filled = min(res.N, len(t.buf))
		t.setState(Draining)
	default:
		log.Trace("caught up with source", "from", from, "status", res.Status)
		t.setState(Polling)
	}
}

// grow makes the buffer hold at least minSize bytes. The buffer never
// shrinks, a request that is already satisfied doubles it.
func (t *Tailer) grow(minSize int) error {
	size := max(minSize, len(t.buf))
	if size == len(t.buf) {
		size = 2 * len(t.buf)
	}
	if size > t.opts.maxBufferSize {
		if minSize > t.opts.maxBufferSize || len(t.buf) >= t.opts.maxBufferSize {
			return fmt.Errorf("%w: need %d, max %d", ErrBufferLimit, minSize, t.opts.maxBufferSize)
		}
		size = t.opts.maxBufferSize
	}
	log.Debug("growing read buffer", "from", len(t.buf), "to", size, "requested", minSize)
	t.lock.Lock()
	t.buf = make([]byte, size)
	t.lock.Unlock()
	bufferBytes.Set(float64(size))
	return nil
}

// drain walks the filled buffer. It returns false when the walk ended the
// sequence, either by the consumer stopping or by a corrupt record.
func (t *Tailer) drain(yield func(eventlog.Record, error) bool) bool {
	delivered := 0
	for r, err := range eventlog.Walk(t.buf[:t.filled]) {
		if err != nil {
			t.fail(err)
			yield(eventlog.Record{}, err)
			return false
		}
		if !after(r.RecordNumber, t.Cursor().LastDelivered) {
			log.Trace("skipping delivered record", "record_number", r.RecordNumber)
			continue
		}
		if source, _, err := r.Names(); err == nil {
			log.Trace("yielding record", "record_number", r.RecordNumber, "event_id", r.EventID, "source", source)
		} else {
			log.WithoutEscalation().WithError(err).Trace("record names unreadable", "record_number", r.RecordNumber)
		}
		if !yield(r, nil) {
			return false
		}
		t.advance(r.RecordNumber)
		delivered++
	}
	t.filled = 0
	if delivered == 0 {
		t.setState(Polling)
		return true
	}
	t.setState(Seeking)
	return true
}

func (t *Tailer) advance(number uint32) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if after(number, t.cursor.LastDelivered) {
		t.cursor.LastDelivered = number
		lastDelivered.Set(float64(number))
	}
}

func (t *Tailer) fail(err error) {
	t.lock.Lock()
	if t.state == Failed {
		t.lock.Unlock()
		return
	}
	t.state = Failed
	t.err = err
	t.lock.Unlock()
	if errors.Is(err, context.Canceled) {
		log.Info("tailer stopped", "last_delivered", t.Cursor().LastDelivered)
	} else {
		log.WithError(err).Error("tailer failed", "last_delivered", t.Cursor().LastDelivered)
	}
	log.WithError(t.Close()).Warning("releasing event source")
}

func (t *Tailer) setState(s State) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.state == Failed {
		return
	}
	if t.state != s {
		log.Trace("tailer state", "from", t.state, "to", s)
	}
	t.state = s
}

func (t *Tailer) State() State {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.state
}

func (t *Tailer) Cursor() Cursor {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.cursor
}

// Err is the error that moved the tailer to Failed.
func (t *Tailer) Err() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.err == nil && t.state == Failed {
		return ErrClosed
	}
	return t.err
}

func (t *Tailer) BufferSize() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.buf)
}

// Close releases the source. The tailer is Failed afterwards.
func (t *Tailer) Close() error {
	t.closeOnce.Do(func() {
		t.lock.Lock()
		if t.state != Failed {
			t.state = Failed
			t.err = ErrClosed
		}
		t.lock.Unlock()
		t.closeErr = t.src.Close()
	})
	return t.closeErr
}

// after reports whether record number a comes after b, allowing the
// numbers to wrap.
func after(a, b uint32) bool {
	return int32(a-b) > 0
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
