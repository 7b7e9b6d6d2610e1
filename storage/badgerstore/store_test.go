package badgerstore

import (
	"context"
	"errors"
	"testing"

	contextkeys "github.com/iidesho/evtship/contextKeys"
	"github.com/iidesho/evtship/storage"
	"github.com/iidesho/evtship/wire"
)

func record(number uint32) wire.Record {
	return wire.Record{
		Length:       64,
		Reserved:     wire.RecordMagic,
		RecordNumber: number,
		EventID:      4625,
		StringOffset: 64,
	}
}

func TestIndex(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	a := contextkeys.WithOrigin(context.Background(), "a:1")
	for _, n := range []uint32{10, 2, 9} {
		if err := idx.Ingest(a, record(n)); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Ingest(contextkeys.WithOrigin(context.Background(), "a:10"), record(1)); err != nil {
		t.Fatal(err)
	}

	e, err := idx.Get("a:1", 9)
	if err != nil {
		t.Fatal(err)
	}
	if e.Origin != "a:1" || e.Record != record(9) {
		t.Errorf("unexpected entry %+v", e)
	}
	if _, err := idx.Get("a:1", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	var got []uint32
	for _, e := range idx.Range(storage.Prefix("a:1")) {
		got = append(got, e.Record.RecordNumber)
	}
	if len(got) != 3 || got[0] != 2 || got[1] != 9 || got[2] != 10 {
		t.Errorf("range yielded %v", got)
	}
}

func TestCheckAfterClose(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Check(); err != nil {
		t.Errorf("open index unhealthy: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := idx.Check(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected closed index, got %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("second close returned %v", err)
	}
}
