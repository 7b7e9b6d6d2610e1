package eventlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/iidesho/evtship/wire"
	"golang.org/x/text/encoding/unicode"
)

const (
	// HeaderSize is the fixed part of a native record, the variable
	// length strings and blobs follow it.
	HeaderSize = wire.NativeHeaderSize
	// Magic is the value of the reserved field of every native record.
	Magic = wire.RecordMagic
	// MaxRecordSize bounds the declared length of a single record.
	MaxRecordSize = 1 << 20
)

var (
	ErrCorruptRecord     = errors.New("eventlog: corrupt record")
	ErrMissingTerminator = errors.New("eventlog: string without terminator")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Record is one native event log record. The header fields are decoded
// eagerly, strings are decoded on demand from Raw.
type Record struct {
	Length              uint32
	Reserved            uint32
	RecordNumber        uint32
	TimeGenerated       uint32
	TimeWritten         uint32
	EventID             uint32
	EventType           uint16
	NumStrings          uint16
	EventCategory       uint16
	ReservedFlags       uint16
	ClosingRecordNumber uint32
	StringOffset        uint32
	UserSidLength       uint32
	UserSidOffset       uint32
	DataLength          uint32
	DataOffset          uint32

	// Raw is the record's own byte extent, Length bytes long.
	Raw []byte
}

// ParseRecord decodes the record at the start of b. The declared length
// must lie in [HeaderSize, len(b)]. The returned record owns a copy of its
// bytes.
func ParseRecord(b []byte) (Record, error) {
	if len(b) < 4 {
		return Record{}, fmt.Errorf("%w: %d bytes left, no room for a length", ErrCorruptRecord, len(b))
	}
	le := binary.LittleEndian
	length := le.Uint32(b[0:4])
	if length == 0 || uint64(length) > uint64(len(b)) {
		return Record{}, fmt.Errorf("%w: declared length %d with %d bytes remaining", ErrCorruptRecord, length, len(b))
	}
	if length < HeaderSize {
		return Record{}, fmt.Errorf("%w: declared length %d shorter than header", ErrCorruptRecord, length)
	}
	if length > MaxRecordSize {
		return Record{}, fmt.Errorf("%w: declared length %d above %d", ErrCorruptRecord, length, MaxRecordSize)
	}
	raw := make([]byte, length)
	copy(raw, b[:length])
	r := Record{
		Length:              length,
		Reserved:            le.Uint32(raw[4:8]),
		RecordNumber:        le.Uint32(raw[8:12]),
		TimeGenerated:       le.Uint32(raw[12:16]),
		TimeWritten:         le.Uint32(raw[16:20]),
		EventID:             le.Uint32(raw[20:24]),
		EventType:           le.Uint16(raw[24:26]),
		NumStrings:          le.Uint16(raw[26:28]),
		EventCategory:       le.Uint16(raw[28:30]),
		ReservedFlags:       le.Uint16(raw[30:32]),
		ClosingRecordNumber: le.Uint32(raw[32:36]),
		StringOffset:        le.Uint32(raw[36:40]),
		UserSidLength:       le.Uint32(raw[40:44]),
		UserSidOffset:       le.Uint32(raw[44:48]),
		DataLength:          le.Uint32(raw[48:52]),
		DataOffset:          le.Uint32(raw[52:56]),
		Raw:                 raw,
	}
	// A record the collector could not decode is corrupt here too.
	if err := r.Wire().Validate(); err != nil {
		return Record{}, fmt.Errorf("%w: record %d: %v", ErrCorruptRecord, r.RecordNumber, err)
	}
	return r, nil
}

// Wire keeps the numeric header of the record. The event type has no
// place on the wire.
func (r Record) Wire() wire.Record {
	return wire.Record{
		Length:              r.Length,
		Reserved:            r.Reserved,
		RecordNumber:        r.RecordNumber,
		TimeGenerated:       r.TimeGenerated,
		TimeWritten:         r.TimeWritten,
		EventID:             r.EventID,
		NumStrings:          r.NumStrings,
		EventCategory:       r.EventCategory,
		ReservedFlags:       r.ReservedFlags,
		ClosingRecordNumber: r.ClosingRecordNumber,
		StringOffset:        r.StringOffset,
		UserSidLength:       r.UserSidLength,
		UserSidOffset:       r.UserSidOffset,
		DataLength:          r.DataLength,
		DataOffset:          r.DataOffset,
	}
}

// Walk iterates the records packed in buf, advancing by each record's
// declared length. A length violation is yielded as an error and ends the
// walk.
func Walk(buf []byte) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		off := 0
		for off < len(buf) {
			r, err := ParseRecord(buf[off:])
			if err != nil {
				yield(Record{}, fmt.Errorf("at offset %d: %w", off, err))
				return
			}
			off += int(r.Length)
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Names returns the source and computer name that follow the header.
func (r Record) Names() (source, computer string, err error) {
	source, next, err := scanString(r.Raw, HeaderSize, len(r.Raw))
	if err != nil {
		return "", "", fmt.Errorf("source name: %w", err)
	}
	computer, _, err = scanString(r.Raw, next, len(r.Raw))
	if err != nil {
		return "", "", fmt.Errorf("computer name: %w", err)
	}
	return
}

// InsertionStrings returns the NumStrings strings found at StringOffset.
func (r Record) InsertionStrings() ([]string, error) {
	if r.NumStrings == 0 {
		return nil, nil
	}
	if r.StringOffset < HeaderSize || uint64(r.StringOffset) > uint64(len(r.Raw)) {
		return nil, fmt.Errorf("%w: string offset %d outside record", ErrCorruptRecord, r.StringOffset)
	}
	out := make([]string, 0, r.NumStrings)
	off := int(r.StringOffset)
	for i := 0; i < int(r.NumStrings); i++ {
		s, next, err := scanString(r.Raw, off, len(r.Raw))
		if err != nil {
			return nil, fmt.Errorf("insertion string %d: %w", i, err)
		}
		out = append(out, s)
		off = next
	}
	return out, nil
}

// scanString decodes a NUL terminated UTF-16LE string starting at start,
// never looking at or past end. It returns the offset after the terminator.
func scanString(b []byte, start, end int) (string, int, error) {
	if end > len(b) {
		end = len(b)
	}
	for i := start; i+1 < end; i += 2 {
		if b[i] != 0 || b[i+1] != 0 {
			continue
		}
		s, err := utf16le.NewDecoder().Bytes(b[start:i])
		if err != nil {
			return "", 0, err
		}
		return string(s), i + 2, nil
	}
	return "", 0, fmt.Errorf("%w: scanned [%d, %d)", ErrMissingTerminator, start, end)
}
