package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/iidesho/evtship/bcts"
)

const (
	PrefixSize          = 4
	DefaultMaxFrameSize = 1 << 20
)

var (
	// ErrDecode marks a payload that was read in full but could not be
	// turned into a Record. The stream itself is still in sync.
	ErrDecode = errors.New("wire: decode error")
	// ErrFrameTooLarge is returned after an oversized payload has been
	// consumed and discarded.
	ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds max size", ErrDecode)
	// ErrFrameTruncated marks a stream that ended inside a payload.
	ErrFrameTruncated = errors.New("wire: frame truncated")
	// ErrStreamEnd marks a stream that ended at, or inside, a length prefix.
	ErrStreamEnd = fmt.Errorf("wire: stream ended: %w", io.EOF)
)

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// Frame is one length prefixed unit of the stream.
type Frame struct {
	Length  uint32
	Payload []byte
}

// Encode serializes r into a frame.
func Encode(r Record) (Frame, error) {
	payload, err := bcts.Write(r)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Length:  uint32(len(payload)),
		Payload: payload,
	}, nil
}

// Bytes returns the prefix and payload as one contiguous slice.
func (f Frame) Bytes() []byte {
	b := make([]byte, PrefixSize+len(f.Payload))
	binary.BigEndian.PutUint32(b[:PrefixSize], f.Length)
	copy(b[PrefixSize:], f.Payload)
	return b
}

// WriteTo writes the whole frame to w.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	err := bcts.WriteUInt32(w, f.Length)
	if err != nil {
		return 0, err
	}
	err = bcts.WriteStaticBytes(w, f.Payload)
	if err != nil {
		return PrefixSize, err
	}
	return int64(PrefixSize + len(f.Payload)), nil
}

// Decode turns a payload back into a Record. It has no side effects and
// never looks past the payload it is given.
func Decode(payload []byte) (Record, error) {
	if len(payload) < RecordSize {
		return Record{}, decodeErr("payload of %d bytes shorter than record size %d", len(payload), RecordSize)
	}
	r, rest, err := bcts.Read[Record](payload)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if rest != 0 {
		return Record{}, decodeErr("%d trailing bytes after record", rest)
	}
	if err = r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// ReadFrame reads exactly one frame from r and returns its payload.
//
// The declared length is always consumed. Payloads larger than max are
// read into io.Discard and reported as ErrFrameTooLarge so the caller can
// carry on with the next frame. max zero means DefaultMaxFrameSize.
func ReadFrame(r io.Reader, max uint32) ([]byte, error) {
	if max == 0 {
		max = DefaultMaxFrameSize
	}
	var length uint32
	err := bcts.ReadUInt32(r, &length)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrStreamEnd
		}
		return nil, err
	}
	if length > max {
		n, err := io.CopyN(io.Discard, r, int64(length))
		if err != nil {
			return nil, truncated(n, length, err)
		}
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, max)
	}
	payload := make([]byte, length)
	n, err := io.ReadFull(r, payload)
	if err != nil {
		return nil, truncated(int64(n), length, err)
	}
	return payload, nil
}

func truncated(got int64, want uint32, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: got %d of %d payload bytes", ErrFrameTruncated, got, want)
	}
	return err
}
