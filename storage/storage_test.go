package storage

import (
	"context"
	"errors"
	"testing"

	contextkeys "github.com/iidesho/evtship/contextKeys"
	"github.com/iidesho/evtship/wire"
	"github.com/nutsdb/nutsdb"
)

func record(number uint32) wire.Record {
	return wire.Record{
		Length:       64,
		Reserved:     wire.RecordMagic,
		RecordNumber: number,
		EventID:      4624,
		StringOffset: 64,
	}
}

func TestKeyOrdersNumbers(t *testing.T) {
	if Key("h", 9) >= Key("h", 10) {
		t.Error("keys do not sort by record number")
	}
	if Key("10.0.0.1:5000", 42) != "10.0.0.1:5000/0000000042" {
		t.Error("unexpected key ", Key("10.0.0.1:5000", 42))
	}
}

func TestIndex(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	a := contextkeys.WithOrigin(context.Background(), "a:1")
	b := contextkeys.WithOrigin(context.Background(), "b:1")
	for i := uint32(1); i <= 3; i++ {
		if err := idx.Ingest(a, record(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Ingest(b, record(1)); err != nil {
		t.Fatal(err)
	}

	e, err := idx.Get("a:1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if e.Origin != "a:1" || e.Record != record(2) || e.Received.IsZero() {
		t.Errorf("unexpected entry %+v", e)
	}
	if _, err := idx.Get("a:1", 4); err == nil {
		t.Error("expected missing record error")
	}

	n := 0
	for k, e := range idx.Range(Prefix("a:1")) {
		if e.Origin != "a:1" {
			t.Errorf("range over a yielded %s", k)
		}
		n++
	}
	if n != 3 {
		t.Errorf("expected 3 entries for a, got %d", n)
	}
	n = 0
	for range idx.Range("") {
		n++
	}
	if n != 4 {
		t.Errorf("expected 4 entries, got %d", n)
	}
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := contextkeys.WithOrigin(context.Background(), "host")
	if err := idx.Ingest(ctx, record(7)); err != nil {
		t.Fatal(err)
	}
	if err := idx.Check(); err != nil {
		t.Errorf("open index unhealthy: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := idx.Check(); !errors.Is(err, nutsdb.ErrDBClosed) {
		t.Errorf("expected closed index, got %v", err)
	}
	idx, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if _, err := idx.Get("host", 7); err != nil {
		t.Errorf("record lost over reopen: %v", err)
	}
}
