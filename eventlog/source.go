package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrOpen        = errors.New("eventlog: unable to open source")
	ErrRead        = errors.New("eventlog: read failed")
	ErrUnsupported = errors.New("eventlog: source kind not supported on this host")
	ErrUnknownKind = errors.New("eventlog: unknown source kind")
)

// Bounds is what a source reports about the records it currently holds.
type Bounds struct {
	Oldest uint32
	Total  uint32
}

// Newest is the record number of the last record present, or Oldest-1 when
// the source is empty.
func (b Bounds) Newest() uint32 {
	return b.Oldest + b.Total - 1
}

type ReadStatus uint8

const (
	// ReadOK means N bytes of whole records were placed in the buffer.
	ReadOK ReadStatus = iota
	// ReadNeedLargerBuffer means the next record does not fit, MinSize
	// holds the size required.
	ReadNeedLargerBuffer
	// ReadNoMoreRecords means the reader has caught up with the writer.
	ReadNoMoreRecords
	// ReadFatal means the source can not be read any further.
	ReadFatal
)

func (s ReadStatus) String() string {
	switch s {
	case ReadOK:
		return "ok"
	case ReadNeedLargerBuffer:
		return "need_larger_buffer"
	case ReadNoMoreRecords:
		return "no_more_records"
	case ReadFatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Transient reports whether the reader is expected to recover by itself.
func (s ReadStatus) Transient() bool {
	return s == ReadNeedLargerBuffer || s == ReadNoMoreRecords
}

// ReadResult is the outcome of one ReadNext call. Every source classifies
// its own platform errors into one of the statuses.
type ReadResult struct {
	Status  ReadStatus
	N       int
	MinSize int
	Err     error
}

func Records(n int) ReadResult {
	return ReadResult{Status: ReadOK, N: n}
}

func NeedLargerBuffer(minSize int) ReadResult {
	return ReadResult{Status: ReadNeedLargerBuffer, MinSize: minSize}
}

func NoMoreRecords() ReadResult {
	return ReadResult{Status: ReadNoMoreRecords}
}

func Fatal(err error) ReadResult {
	return ReadResult{Status: ReadFatal, Err: fmt.Errorf("%w: %w", ErrRead, err)}
}

// Source is a live, append only log of native records.
type Source interface {
	// Bounds reports the oldest record number and the number of records.
	Bounds() (Bounds, error)
	// ReadNext fills buf with whole records starting at record number from.
	ReadNext(from uint32, buf []byte) ReadResult
	Close() error
}

type Kind string

const (
	KindWindows Kind = "windows"
	KindJournal Kind = "journal"
	KindUnified Kind = "unified"
	KindFile    Kind = "file"
	KindMemory  Kind = "memory"
)

// Opener opens the named log of one source kind.
type Opener func(ctx context.Context, name string) (Source, error)

var (
	openersLock sync.RWMutex
	openers     = map[Kind]Opener{}
)

func init() {
	unsupported := func(kind Kind) Opener {
		return func(_ context.Context, name string) (Source, error) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
		}
	}
	Register(KindJournal, unsupported(KindJournal))
	Register(KindUnified, unsupported(KindUnified))
}

// Register makes a source kind available to Open. Registering a kind twice
// replaces the earlier opener.
func Register(kind Kind, o Opener) {
	openersLock.Lock()
	defer openersLock.Unlock()
	openers[kind] = o
}

// Kinds lists the registered source kinds.
func Kinds() []Kind {
	openersLock.RLock()
	defer openersLock.RUnlock()
	out := make([]Kind, 0, len(openers))
	for k := range openers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Open opens the named log with the opener registered for kind.
func Open(ctx context.Context, kind Kind, name string) (Source, error) {
	openersLock.RLock()
	o, ok := openers[kind]
	openersLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q, registered %v", ErrUnknownKind, kind, Kinds())
	}
	s, err := o(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w %s/%s: %w", ErrOpen, kind, name, err)
	}
	return s, nil
}
