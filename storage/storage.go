// Package storage keeps the records the collector receives in a nutsdb
// store, keyed by origin and record number.
package storage

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/iidesho/bragi/sbragi"
	contextkeys "github.com/iidesho/evtship/contextKeys"
	"github.com/iidesho/evtship/wire"
	jsoniter "github.com/json-iterator/go"
	"github.com/nutsdb/nutsdb"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigFastest

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

const bucket = "records"

// Entry is one indexed record.
type Entry struct {
	Origin   string      `json:"origin"`
	Received time.Time   `json:"received"`
	Record   wire.Record `json:"record"`
}

// Key orders the records of one origin by record number.
func Key(origin string, number uint32) string {
	return fmt.Sprintf("%s/%010d", origin, number)
}

// Prefix is the key prefix shared by every record of origin.
func Prefix(origin string) string {
	return origin + "/"
}

// NewEntry builds the entry stored for r, taking the origin from ctx.
func NewEntry(ctx context.Context, r wire.Record) Entry {
	return Entry{
		Origin:   contextkeys.OriginFrom(ctx),
		Received: time.Now().UTC(),
		Record:   r,
	}
}

func Marshal(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(b []byte) (e Entry, err error) {
	err = json.Unmarshal(b, &e)
	return
}

type Index struct {
	db *nutsdb.DB
}

func Open(dir string) (*Index, error) {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return nil, errors.Wrap(err, "creating index dir")
	}
	db, err := nutsdb.Open(
		nutsdb.DefaultOptions,
		nutsdb.WithDir(dir),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "opening nutsdb in %s", dir)
	}
	err = db.Update(func(tx *nutsdb.Tx) error {
		return tx.NewKVBucket(bucket)
	})
	log.WithoutEscalation().WithError(err).Debug("creating kv bucket", "dir", dir)
	log.Info("opened nutsdb index", "dir", dir)
	return &Index{db: db}, nil
}

func (i *Index) Ingest(ctx context.Context, r wire.Record) error {
	e := NewEntry(ctx, r)
	b, err := Marshal(e)
	if err != nil {
		return err
	}
	k := Key(e.Origin, r.RecordNumber)
	log.Trace("storing", "key", k)
	return i.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucket, []byte(k), b, nutsdb.Persistent)
	})
}

func (i *Index) Get(origin string, number uint32) (e Entry, err error) {
	var data []byte
	err = i.db.View(func(tx *nutsdb.Tx) error {
		data, err = tx.Get(bucket, []byte(Key(origin, number)))
		return err
	})
	if err != nil {
		return Entry{}, errors.Wrapf(err, "getting %s", Key(origin, number))
	}
	return Unmarshal(data)
}

// Range yields the stored entries whose key starts with prefix, all of
// them for an empty prefix.
func (i *Index) Range(prefix string) iter.Seq2[string, Entry] {
	var keys [][]byte
	var values [][]byte
	err := i.db.View(func(tx *nutsdb.Tx) error {
		var err error
		keys, values, err = tx.GetAll(bucket)
		return err
	})
	log.WithError(err).Error("getting values for range")
	return func(yield func(string, Entry) bool) {
		for n := range keys {
			k := string(keys[n])
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			e, err := Unmarshal(values[n])
			if log.WithError(err).Error("unmarshaling entry", "key", k, "raw_value", string(values[n])) {
				continue
			}
			if !yield(k, e) {
				return
			}
		}
	}
}

// Check reports whether the index still accepts transactions.
func (i *Index) Check() error {
	return errors.Wrap(i.db.View(func(tx *nutsdb.Tx) error {
		return nil
	}), "index unavailable")
}

func (i *Index) Close() error {
	return i.db.Close()
}
