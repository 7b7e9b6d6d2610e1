package bcts

import (
	"encoding/binary"
	"io"
)

func ReadUInt16[T ~uint16](r io.Reader, i *T) error {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*i = T(binary.BigEndian.Uint16(b[:]))
	return nil
}

func ReadUInt32[T ~uint32](r io.Reader, i *T) error {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*i = T(binary.BigEndian.Uint32(b[:]))
	return nil
}
