// Package wire implements the framed binary protocol spoken between the
// forwarder and the collector.
//
// A stream is a sequence of frames, each a 4 byte big-endian payload length
// followed by that many payload bytes. The payload is a fixed 54 byte
// Record. Frame boundaries only ever come from the length prefix, so a
// payload that fails to decode never desynchronizes the stream.
package wire

import (
	"io"

	"github.com/iidesho/evtship/bcts"
)

const (
	// RecordSize is the encoded size of a Record payload.
	RecordSize = 54
	// RecordMagic is the value every native event record carries in its
	// reserved field ("LfLe").
	RecordMagic uint32 = 0x654c664c
	// NativeHeaderSize is the fixed header size of a native event record,
	// any offset inside a record points at or past it.
	NativeHeaderSize = 56
)

// Record is the flat numeric subset of a native event record that is
// shipped to the collector. Strings stay on the host.
type Record struct {
	Length              uint32 `json:"length"`
	Reserved            uint32 `json:"reserved"`
	RecordNumber        uint32 `json:"record_number"`
	TimeGenerated       uint32 `json:"time_generated"`
	TimeWritten         uint32 `json:"time_written"`
	EventID             uint32 `json:"event_id"`
	NumStrings          uint16 `json:"num_strings"`
	EventCategory       uint16 `json:"event_category"`
	ReservedFlags       uint16 `json:"reserved_flags"`
	ClosingRecordNumber uint32 `json:"closing_record_number"`
	StringOffset        uint32 `json:"string_offset"`
	UserSidLength       uint32 `json:"user_sid_length"`
	UserSidOffset       uint32 `json:"user_sid_offset"`
	DataLength          uint32 `json:"data_length"`
	DataOffset          uint32 `json:"data_offset"`
}

var _ bcts.Writer = Record{}

func (r Record) WriteBytes(w io.Writer) (err error) {
	for _, v := range []uint32{r.Length, r.Reserved, r.RecordNumber, r.TimeGenerated, r.TimeWritten, r.EventID} {
		err = bcts.WriteUInt32(w, v)
		if err != nil {
			return
		}
	}
	for _, v := range []uint16{r.NumStrings, r.EventCategory, r.ReservedFlags} {
		err = bcts.WriteUInt16(w, v)
		if err != nil {
			return
		}
	}
	for _, v := range []uint32{r.ClosingRecordNumber, r.StringOffset, r.UserSidLength, r.UserSidOffset, r.DataLength, r.DataOffset} {
		err = bcts.WriteUInt32(w, v)
		if err != nil {
			return
		}
	}
	return nil
}

func (r *Record) ReadBytes(rd io.Reader) (err error) {
	for _, v := range []*uint32{&r.Length, &r.Reserved, &r.RecordNumber, &r.TimeGenerated, &r.TimeWritten, &r.EventID} {
		err = bcts.ReadUInt32(rd, v)
		if err != nil {
			return
		}
	}
	for _, v := range []*uint16{&r.NumStrings, &r.EventCategory, &r.ReservedFlags} {
		err = bcts.ReadUInt16(rd, v)
		if err != nil {
			return
		}
	}
	for _, v := range []*uint32{&r.ClosingRecordNumber, &r.StringOffset, &r.UserSidLength, &r.UserSidOffset, &r.DataLength, &r.DataOffset} {
		err = bcts.ReadUInt32(rd, v)
		if err != nil {
			return
		}
	}
	return nil
}

// Validate checks that the fields describe a record the native layout could
// have produced.
func (r Record) Validate() error {
	if r.Reserved != RecordMagic {
		return decodeErr("bad record magic %#x", r.Reserved)
	}
	if r.Length < NativeHeaderSize {
		return decodeErr("record length %d shorter than header", r.Length)
	}
	if r.StringOffset < NativeHeaderSize || r.StringOffset > r.Length {
		return decodeErr("string offset %d outside record of length %d", r.StringOffset, r.Length)
	}
	if r.UserSidLength > 0 && !inside(r.UserSidOffset, r.UserSidLength, r.Length) {
		return decodeErr("user sid [%d+%d] outside record of length %d", r.UserSidOffset, r.UserSidLength, r.Length)
	}
	if r.DataLength > 0 && !inside(r.DataOffset, r.DataLength, r.Length) {
		return decodeErr("data [%d+%d] outside record of length %d", r.DataOffset, r.DataLength, r.Length)
	}
	return nil
}

func inside(off, n, length uint32) bool {
	return off >= NativeHeaderSize && uint64(off)+uint64(n) <= uint64(length)
}
