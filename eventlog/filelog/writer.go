package filelog

import (
	"os"
	"sync"

	"github.com/iidesho/evtship/eventlog"
	"github.com/pkg/errors"
)

// Writer appends entries to an event file, numbering them after the last
// record already present.
type Writer struct {
	lock sync.Mutex
	f    *os.File
	next uint32
}

func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0640)
	if err != nil {
		return nil, errors.Wrap(err, "opening event file for append")
	}
	s, err := Open(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	defer s.Close()
	next := uint32(1)
	if n := len(s.numbers); n > 0 {
		next = s.numbers[n-1] + 1
	}
	return &Writer{f: f, next: next}, nil
}

func (w *Writer) Append(e eventlog.Entry) (uint32, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	e.RecordNumber = w.next
	b, err := e.Marshal()
	if err != nil {
		return 0, err
	}
	if _, err = w.f.Write(b); err != nil {
		return 0, errors.Wrap(err, "appending record")
	}
	w.next++
	return e.RecordNumber, nil
}

// WriteRaw appends b verbatim, it is how partially written records are
// produced in tests.
func (w *Writer) WriteRaw(b []byte) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	_, err := w.f.Write(b)
	return errors.Wrap(err, "appending raw bytes")
}

func (w *Writer) Close() error {
	return w.f.Close()
}
