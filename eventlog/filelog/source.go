// Package filelog tails a file holding native event records back to back.
// Another process appends to the file; the source indexes new records as
// they become complete and leaves a half written record for a later read.
package filelog

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	log "github.com/iidesho/bragi/sbragi"
	"github.com/iidesho/evtship/eventlog"
	"github.com/pkg/errors"
)

var (
	ErrTruncated = errors.New("filelog: file shrank below indexed size")
	ErrPurged    = errors.New("filelog: record no longer available")
)

func init() {
	eventlog.Register(eventlog.KindFile, func(_ context.Context, name string) (eventlog.Source, error) {
		return Open(name)
	})
}

type Source struct {
	lock    sync.Mutex
	path    string
	f       *os.File
	scanned int64
	offsets []int64
	lengths []uint32
	numbers []uint32
}

// Open opens the file at path for tailing. The file must exist.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening event file")
	}
	s := &Source{
		path: path,
		f:    f,
	}
	if err = s.refresh(); err != nil {
		f.Close()
		return nil, err
	}
	log.Debug("opened event file", "path", path, "records", len(s.numbers))
	return s, nil
}

// refresh indexes every complete record appended since the last call.
func (s *Source) refresh() error {
	info, err := s.f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat event file")
	}
	size := info.Size()
	if size < s.scanned {
		return fmt.Errorf("%w: %d < %d", ErrTruncated, size, s.scanned)
	}
	var head [12]byte
	for s.scanned+int64(len(head)) <= size {
		_, err = s.f.ReadAt(head[:], s.scanned)
		if err != nil {
			return errors.Wrap(err, "reading record header")
		}
		length := binary.LittleEndian.Uint32(head[0:4])
		if length < eventlog.HeaderSize || length > eventlog.MaxRecordSize {
			return fmt.Errorf("%w: length %d at offset %d", eventlog.ErrCorruptRecord, length, s.scanned)
		}
		if s.scanned+int64(length) > size {
			break
		}
		number := binary.LittleEndian.Uint32(head[8:12])
		if n := len(s.numbers); n > 0 && number <= s.numbers[n-1] {
			return fmt.Errorf("%w: record number %d after %d at offset %d", eventlog.ErrCorruptRecord, number, s.numbers[n-1], s.scanned)
		}
		s.offsets = append(s.offsets, s.scanned)
		s.lengths = append(s.lengths, length)
		s.numbers = append(s.numbers, number)
		s.scanned += int64(length)
	}
	return nil
}

func (s *Source) Bounds() (eventlog.Bounds, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.refresh(); err != nil {
		return eventlog.Bounds{}, err
	}
	if len(s.numbers) == 0 {
		return eventlog.Bounds{Oldest: 1}, nil
	}
	return eventlog.Bounds{
		Oldest: s.numbers[0],
		Total:  uint32(len(s.numbers)),
	}, nil
}

func (s *Source) ReadNext(from uint32, buf []byte) eventlog.ReadResult {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.refresh(); err != nil {
		return eventlog.Fatal(err)
	}
	if len(s.numbers) > 0 && from < s.numbers[0] {
		return eventlog.Fatal(fmt.Errorf("%w: %d < %d", ErrPurged, from, s.numbers[0]))
	}
	i := sort.Search(len(s.numbers), func(i int) bool { return s.numbers[i] >= from })
	if i == len(s.numbers) {
		return eventlog.NoMoreRecords()
	}
	if int(s.lengths[i]) > len(buf) {
		return eventlog.NeedLargerBuffer(int(s.lengths[i]))
	}
	start := s.offsets[i]
	end := start
	for ; i < len(s.numbers) && end-start+int64(s.lengths[i]) <= int64(len(buf)); i++ {
		end += int64(s.lengths[i])
	}
	n, err := s.f.ReadAt(buf[:end-start], start)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == end-start) {
		return eventlog.Fatal(errors.Wrap(err, "reading records"))
	}
	return eventlog.Records(n)
}

func (s *Source) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.f.Close()
}
