package bcts

import (
	"encoding/binary"
	"io"
)

// All multi byte values are written big-endian (network order).

func WriteUInt16[T ~uint16](w io.Writer, i T) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(i))
	return writeAll(w, b[:])
}

func WriteUInt32[T ~uint32](w io.Writer, i T) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(i))
	return writeAll(w, b[:])
}

func WriteStaticBytes(w io.Writer, b []byte) error {
	return writeAll(w, b)
}

func writeAll(w io.Writer, b []byte) error {
	written := 0
	for written < len(b) {
		n, err := w.Write(b[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}
