// Package inmemory is an event source kept in process memory. Logs are
// named, opening the same name twice yields two handles on one log.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iidesho/evtship/eventlog"
)

var (
	ErrClosed = errors.New("inmemory: handle closed")
	ErrPurged = errors.New("inmemory: record no longer available")
)

var (
	logsLock sync.Mutex
	logs     = map[string]*Log{}
)

func init() {
	eventlog.Register(eventlog.KindMemory, func(_ context.Context, name string) (eventlog.Source, error) {
		return Named(name).Open(), nil
	})
}

// Log is an append only list of native records.
type Log struct {
	lock    sync.RWMutex
	oldest  uint32
	records [][]byte
}

// New creates an unnamed log whose first record gets number oldest.
func New(oldest uint32) *Log {
	return &Log{oldest: oldest}
}

// Named returns the process wide log called name, creating it on first use
// with records numbered from 1.
func Named(name string) *Log {
	logsLock.Lock()
	defer logsLock.Unlock()
	l, ok := logs[name]
	if !ok {
		l = New(1)
		logs[name] = l
	}
	return l
}

// Append assigns the next record number to e and stores it.
func (l *Log) Append(e eventlog.Entry) (uint32, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	e.RecordNumber = l.oldest + uint32(len(l.records))
	b, err := e.Marshal()
	if err != nil {
		return 0, err
	}
	l.records = append(l.records, b)
	return e.RecordNumber, nil
}

// AppendRaw stores b as the next record without looking at it.
func (l *Log) AppendRaw(b []byte) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.records = append(l.records, append([]byte{}, b...))
}

func (l *Log) Bounds() (eventlog.Bounds, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return eventlog.Bounds{Oldest: l.oldest, Total: uint32(len(l.records))}, nil
}

func (l *Log) ReadNext(from uint32, buf []byte) eventlog.ReadResult {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if from < l.oldest {
		return eventlog.Fatal(fmt.Errorf("%w: %d < %d", ErrPurged, from, l.oldest))
	}
	i := int(from - l.oldest)
	if i >= len(l.records) {
		return eventlog.NoMoreRecords()
	}
	if len(l.records[i]) > len(buf) {
		return eventlog.NeedLargerBuffer(len(l.records[i]))
	}
	n := 0
	for ; i < len(l.records) && n+len(l.records[i]) <= len(buf); i++ {
		n += copy(buf[n:], l.records[i])
	}
	return eventlog.Records(n)
}

// Open returns a source handle on the log.
func (l *Log) Open() eventlog.Source {
	return &handle{log: l}
}

type handle struct {
	log    *Log
	lock   sync.Mutex
	closed bool
}

func (h *handle) Bounds() (eventlog.Bounds, error) {
	if h.isClosed() {
		return eventlog.Bounds{}, ErrClosed
	}
	return h.log.Bounds()
}

func (h *handle) ReadNext(from uint32, buf []byte) eventlog.ReadResult {
	if h.isClosed() {
		return eventlog.Fatal(ErrClosed)
	}
	return h.log.ReadNext(from, buf)
}

func (h *handle) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	return nil
}

func (h *handle) isClosed() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.closed
}
