//go:build windows

package winlog

import (
	"context"
	"errors"
	"sync"
	"unsafe"

	log "github.com/iidesho/bragi/sbragi"
	"github.com/iidesho/evtship/eventlog"
	"golang.org/x/sys/windows"
)

const (
	eventlogSeekRead     = 0x0002
	eventlogForwardsRead = 0x0004
)

var (
	advapi32                       = windows.NewLazySystemDLL("advapi32.dll")
	procOpenEventLogW              = advapi32.NewProc("OpenEventLogW")
	procCloseEventLog              = advapi32.NewProc("CloseEventLog")
	procReadEventLogW              = advapi32.NewProc("ReadEventLogW")
	procGetOldestEventLogRecord    = advapi32.NewProc("GetOldestEventLogRecord")
	procGetNumberOfEventLogRecords = advapi32.NewProc("GetNumberOfEventLogRecords")
)

func init() {
	eventlog.Register(eventlog.KindWindows, func(_ context.Context, name string) (eventlog.Source, error) {
		return Open(name)
	})
}

type Source struct {
	lock   sync.Mutex
	name   string
	handle windows.Handle
}

// Open opens the named log on the local machine.
func Open(name string) (*Source, error) {
	n, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	r, _, err := procOpenEventLogW.Call(0, uintptr(unsafe.Pointer(n)))
	if r == 0 {
		return nil, err
	}
	log.Debug("opened windows event log", "name", name)
	return &Source{name: name, handle: windows.Handle(r)}, nil
}

func (s *Source) Bounds() (b eventlog.Bounds, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	r, _, err := procGetOldestEventLogRecord.Call(uintptr(s.handle), uintptr(unsafe.Pointer(&b.Oldest)))
	if r == 0 {
		return eventlog.Bounds{}, err
	}
	r, _, err = procGetNumberOfEventLogRecords.Call(uintptr(s.handle), uintptr(unsafe.Pointer(&b.Total)))
	if r == 0 {
		return eventlog.Bounds{}, err
	}
	return b, nil
}

func (s *Source) ReadNext(from uint32, buf []byte) eventlog.ReadResult {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(buf) == 0 {
		return eventlog.NeedLargerBuffer(eventlog.HeaderSize)
	}
	var read, needed uint32
	r, _, err := procReadEventLogW.Call(
		uintptr(s.handle),
		eventlogSeekRead|eventlogForwardsRead,
		uintptr(from),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&read)),
		uintptr(unsafe.Pointer(&needed)),
	)
	if r != 0 {
		return eventlog.Records(int(read))
	}
	switch {
	case errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER):
		return eventlog.NeedLargerBuffer(int(needed))
	case errors.Is(err, windows.ERROR_HANDLE_EOF):
		return eventlog.NoMoreRecords()
	default:
		return eventlog.Fatal(err)
	}
}

func (s *Source) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	r, _, err := procCloseEventLog.Call(uintptr(s.handle))
	if r == 0 {
		return err
	}
	return nil
}
