// Package leveldb stores record collections in a LevelDB directory.
package leveldb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

// Key layout, parts joined by sep:
//
//	m version                      -> decimal schema version
//	c <collection>                 -> ""
//	i <collection> <index>         -> indexed field
//	r <collection> <id>            -> record body
//	e <collection> <id>            -> JSON of the record's index entries
//	x <collection> <index> <value> <id> -> ""
const sep = "\x00"

var versionKey = []byte("m" + sep + "version")

func key(parts ...string) []byte {
	var b bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p)
	}
	return b.Bytes()
}

func prefix(parts ...string) []byte {
	return append(key(parts...), sep...)
}

// Engine is the LevelDB-backed record engine.
type Engine struct {
	db  *leveldb.DB
	dir string
}

// Open opens or creates the database directory. A held lock or an
// unreadable directory is reported as ErrStorageUnavailable.
func Open(dir string) (*Engine, error) {
	if dir == "" {
		return nil, recordstore.Unavailable("leveldb", errors.New("directory is empty"))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, recordstore.Unavailable("leveldb", err)
	}
	o := &opt.Options{
		Filter: filter.NewBloomFilter(10), // 10 bits/key
	}
	db, err := leveldb.OpenFile(dir, o)
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(dir, o)
	}
	if err != nil {
		return nil, recordstore.Unavailable("leveldb", err)
	}
	return &Engine{db: db, dir: dir}, nil
}

func (e *Engine) Name() string { return "leveldb" }

func (e *Engine) SchemaVersion(_ context.Context) (int, error) {
	val, err := e.db.Get(versionKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("leveldb: %w", err)
	}
	return strconv.Atoi(string(val))
}

// reader is what a snapshot and a write transaction have in common.
type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

func (e *Engine) Begin(ctx context.Context, mode recordstore.Mode) (recordstore.EngineTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mode == recordstore.ReadWrite {
		tr, err := e.db.OpenTransaction()
		if err != nil {
			return nil, recordstore.Unavailable("leveldb", err)
		}
		return &tx{r: tr, w: tr}, nil
	}
	snap, err := e.db.GetSnapshot()
	if err != nil {
		return nil, recordstore.Unavailable("leveldb", err)
	}
	return &tx{r: snap, snap: snap}, nil
}

func (e *Engine) Close() error { return e.db.Close() }

type tx struct {
	r    reader
	w    *leveldb.Transaction // nil for read-only
	snap *leveldb.Snapshot
	done bool
}

func (t *tx) has(k []byte) (bool, error) {
	_, err := t.r.Get(k, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("leveldb: %w", err)
	}
	return true, nil
}

func (t *tx) writable() error {
	if t.w == nil {
		return recordstore.ErrReadOnly
	}
	return nil
}

func (t *tx) requireCollection(name string) error {
	ok, err := t.HasCollection(name)
	if err != nil {
		return err
	}
	if !ok {
		return recordstore.UnknownCollection(name)
	}
	return nil
}

// scan walks every key under p in order.
func (t *tx) scan(p []byte, fn func(k, v []byte) error) error {
	it := t.r.NewIterator(util.BytesPrefix(p), nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func (t *tx) Collections() ([]string, error) {
	var names []string
	p := prefix("c")
	err := t.scan(p, func(k, _ []byte) error {
		names = append(names, string(k[len(p):]))
		return nil
	})
	return names, err
}

func (t *tx) HasCollection(name string) (bool, error) {
	return t.has(key("c", name))
}

func (t *tx) CreateCollection(name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.w.Put(key("c", name), nil, nil)
}

func (t *tx) Indexes(collection string) ([]recordstore.Index, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	var out []recordstore.Index
	p := prefix("i", collection)
	err := t.scan(p, func(k, v []byte) error {
		out = append(out, recordstore.Index{Name: string(k[len(p):]), Field: string(v)})
		return nil
	})
	return out, err
}

func (t *tx) CreateIndex(collection string, idx recordstore.Index) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	return t.w.Put(key("i", collection, idx.Name), []byte(idx.Field), nil)
}

func (t *tx) SetSchemaVersion(v int) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.w.Put(versionKey, []byte(strconv.Itoa(v)), nil)
}

func (t *tx) Get(collection, id string) ([]byte, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	val, err := t.r.Get(key("r", collection, id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, recordstore.NotFound(collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb: %w", err)
	}
	return val, nil
}

func (t *tx) GetAll(collection string) ([]recordstore.Entry, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	var out []recordstore.Entry
	p := prefix("r", collection)
	err := t.scan(p, func(k, v []byte) error {
		out = append(out, recordstore.Entry{Key: string(k[len(p):]), Body: bytes.Clone(v)})
		return nil
	})
	return out, err
}

func (t *tx) GetByIndex(collection, index, value string) ([]recordstore.Entry, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	var ids []string
	p := prefix("x", collection, index, value)
	if err := t.scan(p, func(k, _ []byte) error {
		ids = append(ids, string(k[len(p):]))
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]recordstore.Entry, 0, len(ids))
	for _, id := range ids {
		body, err := t.Get(collection, id)
		if errors.Is(err, recordstore.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, recordstore.Entry{Key: id, Body: body})
	}
	return out, nil
}

func (t *tx) unindex(collection, id string) error {
	ek := key("e", collection, id)
	raw, err := t.r.Get(ek, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("leveldb: %w", err)
	}
	var entries map[string][]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("leveldb: corrupt index entries for %s/%s: %w", collection, id, err)
	}
	for index, values := range entries {
		for _, v := range values {
			if err := t.w.Delete(key("x", collection, index, v, id), nil); err != nil {
				return err
			}
		}
	}
	return t.w.Delete(ek, nil)
}

func (t *tx) Put(collection, id string, body []byte, entries map[string][]string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	if err := t.unindex(collection, id); err != nil {
		return err
	}
	if err := t.w.Put(key("r", collection, id), body, nil); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := t.w.Put(key("e", collection, id), raw, nil); err != nil {
		return err
	}
	for index, values := range entries {
		for _, v := range values {
			if err := t.w.Put(key("x", collection, index, v, id), nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *tx) Delete(collection, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	if err := t.unindex(collection, id); err != nil {
		return err
	}
	return t.w.Delete(key("r", collection, id), nil)
}

func (t *tx) Clear(collection string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	var doomed [][]byte
	for _, kind := range []string{"r", "e", "x"} {
		if err := t.scan(prefix(kind, collection), func(k, _ []byte) error {
			doomed = append(doomed, bytes.Clone(k))
			return nil
		}); err != nil {
			return err
		}
	}
	for _, k := range doomed {
		if err := t.w.Delete(k, nil); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return errors.New("leveldb: transaction already finished")
	}
	t.done = true
	if t.w == nil {
		t.snap.Release()
		return nil
	}
	if err := t.w.Commit(); err != nil {
		return fmt.Errorf("leveldb: %w", err)
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.w == nil {
		t.snap.Release()
		return nil
	}
	t.w.Discard()
	return nil
}
