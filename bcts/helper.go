package bcts

import (
	"bytes"
	"io"
)

// Write serializes w into a fresh byte slice.
func Write(w Writer) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{})
	err := w.WriteBytes(buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ReadReader[BT any, T Reader[BT]](r io.Reader) (BT, error) {
	bv := new(BT)
	v := T(bv)
	err := v.ReadBytes(r)
	return *v, err
}

// Read deserializes data and reports how many trailing bytes were left unread.
func Read[BT any, T Reader[BT]](data []byte) (v BT, rest int, err error) {
	dByte := bytes.NewReader(data)
	v, err = ReadReader[BT, T](dByte)
	return v, dByte.Len(), err
}
