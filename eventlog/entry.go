package eventlog

import (
	"encoding/binary"
	"fmt"
)

// Entry is the logical content of a native record, used to produce records
// in the native layout for sources that store them verbatim.
type Entry struct {
	RecordNumber  uint32
	TimeGenerated uint32
	TimeWritten   uint32
	EventID       uint32
	EventType     uint16
	EventCategory uint16
	SourceName    string
	ComputerName  string
	Strings       []string
	UserSid       []byte
	Data          []byte
}

// Marshal lays the entry out as a native record:
// header | source\0 | computer\0 | pad | sid | strings\0... | data | pad | length.
func (e Entry) Marshal() ([]byte, error) {
	source, err := encodeString(e.SourceName)
	if err != nil {
		return nil, fmt.Errorf("source name: %w", err)
	}
	computer, err := encodeString(e.ComputerName)
	if err != nil {
		return nil, fmt.Errorf("computer name: %w", err)
	}
	var strs []byte
	for i, s := range e.Strings {
		b, err := encodeString(s)
		if err != nil {
			return nil, fmt.Errorf("insertion string %d: %w", i, err)
		}
		strs = append(strs, b...)
	}

	off := align4(HeaderSize + len(source) + len(computer))
	sidOffset := off
	off += len(e.UserSid)
	stringOffset := off
	off += len(strs)
	dataOffset := off
	off += len(e.Data)
	length := align4(off) + 4

	b := make([]byte, length)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], uint32(length))
	le.PutUint32(b[4:8], Magic)
	le.PutUint32(b[8:12], e.RecordNumber)
	le.PutUint32(b[12:16], e.TimeGenerated)
	le.PutUint32(b[16:20], e.TimeWritten)
	le.PutUint32(b[20:24], e.EventID)
	le.PutUint16(b[24:26], e.EventType)
	le.PutUint16(b[26:28], uint16(len(e.Strings)))
	le.PutUint16(b[28:30], e.EventCategory)
	le.PutUint32(b[36:40], uint32(stringOffset))
	le.PutUint32(b[40:44], uint32(len(e.UserSid)))
	le.PutUint32(b[44:48], uint32(sidOffset))
	le.PutUint32(b[48:52], uint32(len(e.Data)))
	le.PutUint32(b[52:56], uint32(dataOffset))
	n := copy(b[HeaderSize:], source)
	copy(b[HeaderSize+n:], computer)
	copy(b[sidOffset:], e.UserSid)
	copy(b[stringOffset:], strs)
	copy(b[dataOffset:], e.Data)
	le.PutUint32(b[length-4:], uint32(length))
	return b, nil
}

// Record marshals the entry and parses it back.
func (e Entry) Record() (Record, error) {
	b, err := e.Marshal()
	if err != nil {
		return Record{}, err
	}
	return ParseRecord(b)
}

func encodeString(s string) ([]byte, error) {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	return append(b, 0, 0), nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
