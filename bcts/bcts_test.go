package bcts_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/iidesho/evtship/bcts"
)

func TestUIntsAreBigEndian(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	if err := bcts.WriteUInt32(buf, uint32(0x01020304)); err != nil {
		t.Fatal(err)
	}
	if err := bcts.WriteUInt16(buf, uint16(0x0506)); err != nil {
		t.Fatal(err)
	}
	if err := bcts.WriteStaticBytes(buf, []byte{7, 8}); err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("unexpected encoding, expected %v got %v", want, buf.Bytes())
	}

	var u32 uint32
	var u16 uint16
	if err := bcts.ReadUInt32(buf, &u32); err != nil || u32 != 0x01020304 {
		t.Error("u32", u32, err)
	}
	if err := bcts.ReadUInt16(buf, &u16); err != nil || u16 != 0x0506 {
		t.Error("u16", u16, err)
	}
}

func TestShortRead(t *testing.T) {
	var u32 uint32
	err := bcts.ReadUInt32(bytes.NewReader([]byte{1, 2}), &u32)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("expected unexpected eof, got", err)
	}
	err = bcts.ReadUInt32(bytes.NewReader(nil), &u32)
	if !errors.Is(err, io.EOF) {
		t.Fatal("expected eof, got", err)
	}
}

type pair struct {
	a uint32
	b uint16
}

func (p pair) WriteBytes(w io.Writer) error {
	if err := bcts.WriteUInt32(w, p.a); err != nil {
		return err
	}
	return bcts.WriteUInt16(w, p.b)
}

func (p *pair) ReadBytes(r io.Reader) error {
	if err := bcts.ReadUInt32(r, &p.a); err != nil {
		return err
	}
	return bcts.ReadUInt16(r, &p.b)
}

func TestWriteRead(t *testing.T) {
	b, err := bcts.Write(pair{a: 9, b: 3})
	if err != nil {
		t.Fatal(err)
	}
	p, rest, err := bcts.Read[pair](append(b, 0xff))
	if err != nil {
		t.Fatal(err)
	}
	if p.a != 9 || p.b != 3 || rest != 1 {
		t.Error("unexpected read", p, rest)
	}
}
