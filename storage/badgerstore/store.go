// Package badgerstore is an index backed by badger, an alternative to the
// nutsdb index with the same keys and entries.
package badgerstore

import (
	"context"
	"fmt"
	"iter"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger"
	"github.com/iidesho/bragi/sbragi"
	"github.com/iidesho/evtship/storage"
	"github.com/iidesho/evtship/wire"
	"github.com/pkg/errors"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

var (
	ErrNotFound = errors.New("badgerstore: record not found")
	ErrClosed   = errors.New("badgerstore: index closed")
)

type badgerLogger struct{}

func (bl badgerLogger) Errorf(msg string, args ...interface{}) {
	log.Error(fmt.Sprintf(msg, args...))
}
func (bl badgerLogger) Warningf(msg string, args ...interface{}) {
	log.Warning(fmt.Sprintf(msg, args...))
}
func (bl badgerLogger) Infof(msg string, args ...interface{}) {
	log.Debug(fmt.Sprintf(msg, args...))
}
func (bl badgerLogger) Debugf(msg string, args ...interface{}) {
	log.Trace(fmt.Sprintf(msg, args...))
}

type Index struct {
	db     *badger.DB
	closed atomic.Bool
}

func Open(dir string) (*Index, error) {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return nil, errors.Wrap(err, "creating index dir")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(badgerLogger{}))
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger in %s", dir)
	}
	log.Info("opened badger index", "dir", dir)
	return &Index{db: db}, nil
}

func (i *Index) Ingest(ctx context.Context, r wire.Record) error {
	e := storage.NewEntry(ctx, r)
	b, err := storage.Marshal(e)
	if err != nil {
		return err
	}
	k := storage.Key(e.Origin, r.RecordNumber)
	log.Trace("storing", "key", k)
	return i.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(k), b)
	})
}

func (i *Index) Get(origin string, number uint32) (storage.Entry, error) {
	k := storage.Key(origin, number)
	var data []byte
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	if err != nil {
		return storage.Entry{}, errors.Wrapf(err, "getting %s", k)
	}
	return storage.Unmarshal(data)
}

// Range yields the entries whose key starts with prefix in key order.
func (i *Index) Range(prefix string) iter.Seq2[string, storage.Entry] {
	var keys []string
	var values [][]byte
	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keys = append(keys, string(item.KeyCopy(nil)))
			values = append(values, v)
		}
		return nil
	})
	log.WithError(err).Error("getting values for range", "prefix", prefix)
	return func(yield func(string, storage.Entry) bool) {
		for n, k := range keys {
			e, err := storage.Unmarshal(values[n])
			if log.WithError(err).Error("unmarshaling entry", "key", k) {
				continue
			}
			if !yield(k, e) {
				return
			}
		}
	}
}

// Check reports whether the index is still open.
func (i *Index) Check() error {
	if i.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (i *Index) Close() error {
	if i.closed.Swap(true) {
		return nil
	}
	return i.db.Close()
}
