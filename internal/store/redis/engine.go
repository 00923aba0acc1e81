// Package redis stores record collections in Redis hashes and sets.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

// Engine keeps records in one hash per collection and index entries in sets.
//
// Writes of a read-write transaction are buffered and applied in a single
// MULTI/EXEC on Commit. Transactions are serialized by an in-process RWMutex;
// the store has one writer process.
type Engine struct {
	client *redis.Client
	keys   keys
	mu     sync.RWMutex
}

// New wraps a connected client. prefix namespaces all keys; empty means DefaultPrefix.
func New(client *redis.Client, prefix string) *Engine {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Engine{client: client, keys: keys{prefix: prefix}}
}

func (e *Engine) Name() string { return "redis" }

func (e *Engine) SchemaVersion(ctx context.Context) (int, error) {
	v, err := e.client.Get(ctx, e.keys.VersionKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return strconv.Atoi(v)
}

func (e *Engine) Begin(ctx context.Context, mode recordstore.Mode) (recordstore.EngineTx, error) {
	if mode == recordstore.ReadWrite {
		e.mu.Lock()
	} else {
		e.mu.RLock()
	}
	if err := e.client.Ping(ctx).Err(); err != nil {
		e.unlock(mode)
		return nil, recordstore.Unavailable(e.Name(), err)
	}
	return &tx{
		ctx:     ctx,
		engine:  e,
		k:       e.keys,
		mode:    mode,
		overlay: make(map[string]*overlay),
		created: make(map[string]map[string]string),
		touched: make(map[string]map[string]struct{}),
	}, nil
}

func (e *Engine) unlock(mode recordstore.Mode) {
	if mode == recordstore.ReadWrite {
		e.mu.Unlock()
	} else {
		e.mu.RUnlock()
	}
}

func (e *Engine) Close() error { return e.client.Close() }

// overlay is the buffered state of one collection inside a transaction.
type overlay struct {
	cleared bool
	records map[string][]byte              // nil body = deleted
	entries map[string]map[string][]string // entries of records written in this tx
}

type tx struct {
	ctx    context.Context
	engine *Engine
	k      keys
	mode   recordstore.Mode

	ops     []func(pipe redis.Pipeliner)
	overlay map[string]*overlay
	created map[string]map[string]string   // collections (and their indexes) created in this tx
	touched map[string]map[string]struct{} // index keys written in this tx, per collection
	done    bool
}

func (t *tx) writable() error {
	if t.mode != recordstore.ReadWrite {
		return recordstore.ErrReadOnly
	}
	return nil
}

func (t *tx) ov(collection string) *overlay {
	o, ok := t.overlay[collection]
	if !ok {
		o = &overlay{records: make(map[string][]byte), entries: make(map[string]map[string][]string)}
		t.overlay[collection] = o
	}
	return o
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

func (t *tx) Collections() ([]string, error) {
	names, err := t.engine.client.SMembers(t.ctx, t.k.CollectionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get collections: %w", err)
	}
	for name := range t.created {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (t *tx) HasCollection(name string) (bool, error) {
	if _, ok := t.created[name]; ok {
		return true, nil
	}
	ok, err := t.engine.client.SIsMember(t.ctx, t.k.CollectionsKey(), name).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return ok, nil
}

func (t *tx) CreateCollection(name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.created[name] = make(map[string]string)
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.SAdd(t.ctx, t.k.CollectionsKey(), name)
	})
	return nil
}

func (t *tx) Indexes(collection string) ([]recordstore.Index, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	fields, err := t.engine.client.HGetAll(t.ctx, t.k.IndexesKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get indexes: %w", err)
	}
	maps.Copy(fields, t.created[collection])

	out := make([]recordstore.Index, 0, len(fields))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		out = append(out, recordstore.Index{Name: name, Field: fields[name]})
	}
	return out, nil
}

func (t *tx) CreateIndex(collection string, idx recordstore.Index) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	if t.created[collection] == nil {
		t.created[collection] = make(map[string]string)
	}
	t.created[collection][idx.Name] = idx.Field
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.HSet(t.ctx, t.k.IndexesKey(collection), idx.Name, idx.Field)
	})
	return nil
}

func (t *tx) SetSchemaVersion(v int) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, t.k.VersionKey(), strconv.Itoa(v), 0)
	})
	return nil
}

func (t *tx) Get(collection, id string) ([]byte, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	if o, ok := t.overlay[collection]; ok {
		if body, ok := o.records[id]; ok {
			if body == nil {
				return nil, recordstore.NotFound(collection, id)
			}
			return body, nil
		}
		if o.cleared {
			return nil, recordstore.NotFound(collection, id)
		}
	}
	data, err := t.engine.client.HGet(t.ctx, t.k.RecordsKey(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, recordstore.NotFound(collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return data, nil
}

func (t *tx) GetAll(collection string) ([]recordstore.Entry, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	o := t.overlay[collection]
	all := make(map[string][]byte)
	if o == nil || !o.cleared {
		stored, err := t.engine.client.HGetAll(t.ctx, t.k.RecordsKey(collection)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get records: %w", err)
		}
		for id, body := range stored {
			all[id] = []byte(body)
		}
	}
	if o != nil {
		for id, body := range o.records {
			if body == nil {
				delete(all, id)
			} else {
				all[id] = body
			}
		}
	}

	out := make([]recordstore.Entry, 0, len(all))
	for _, id := range slices.Sorted(maps.Keys(all)) {
		out = append(out, recordstore.Entry{Key: id, Body: all[id]})
	}
	return out, nil
}

func (t *tx) GetByIndex(collection, index, value string) ([]recordstore.Entry, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	o := t.overlay[collection]
	ids := make(map[string]struct{})
	if o == nil || !o.cleared {
		members, err := t.engine.client.SMembers(t.ctx, t.k.IndexKey(collection, index, value)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get index members: %w", err)
		}
		for _, id := range members {
			ids[id] = struct{}{}
		}
	}
	if o != nil {
		for id, body := range o.records {
			delete(ids, id)
			if body != nil && slices.Contains(o.entries[id][index], value) {
				ids[id] = struct{}{}
			}
		}
	}

	out := make([]recordstore.Entry, 0, len(ids))
	for _, id := range slices.Sorted(maps.Keys(ids)) {
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

// entriesOf returns the index entries currently recorded for id.
func (t *tx) entriesOf(collection, id string) (map[string][]string, error) {
	if o, ok := t.overlay[collection]; ok {
		if _, written := o.records[id]; written {
			return o.entries[id], nil
		}
		if o.cleared {
			return nil, nil
		}
	}
	raw, err := t.engine.client.HGet(t.ctx, t.k.EntriesKey(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index entries: %w", err)
	}
	var entries map[string][]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("corrupt index entries for %s/%s: %w", collection, id, err)
	}
	return entries, nil
}

func (t *tx) touch(collection, key string) {
	if t.touched[collection] == nil {
		t.touched[collection] = make(map[string]struct{})
	}
	t.touched[collection][key] = struct{}{}
}

func (t *tx) unindex(collection, id string) error {
	old, err := t.entriesOf(collection, id)
	if err != nil {
		return err
	}
	for index, values := range old {
		for _, v := range values {
			k := t.k.IndexKey(collection, index, v)
			t.ops = append(t.ops, func(pipe redis.Pipeliner) { pipe.SRem(t.ctx, k, id) })
		}
	}
	return nil
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

	var raw []byte
	if len(entries) > 0 {
		var err error
		if raw, err = json.Marshal(entries); err != nil {
			return err
		}
	}
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.HSet(t.ctx, t.k.RecordsKey(collection), id, body)
		if raw == nil {
			pipe.HDel(t.ctx, t.k.EntriesKey(collection), id)
		} else {
			pipe.HSet(t.ctx, t.k.EntriesKey(collection), id, raw)
		}
	})
	for index, values := range entries {
		for _, v := range values {
			k := t.k.IndexKey(collection, index, v)
			t.touch(collection, k)
			t.ops = append(t.ops, func(pipe redis.Pipeliner) { pipe.SAdd(t.ctx, k, id) })
		}
	}

	o := t.ov(collection)
	o.records[id] = body
	o.entries[id] = entries
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
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.HDel(t.ctx, t.k.RecordsKey(collection), id)
		pipe.HDel(t.ctx, t.k.EntriesKey(collection), id)
	})
	o := t.ov(collection)
	o.records[id] = nil
	delete(o.entries, id)
	return nil
}

func (t *tx) Clear(collection string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.requireCollection(collection); err != nil {
		return err
	}

	doomed := []string{t.k.RecordsKey(collection), t.k.EntriesKey(collection)}
	iter := t.engine.client.Scan(t.ctx, 0, t.k.IndexPattern(collection), 0).Iterator()
	for iter.Next(t.ctx) {
		doomed = append(doomed, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan index keys: %w", err)
	}
	for k := range t.touched[collection] {
		doomed = append(doomed, k)
	}
	t.ops = append(t.ops, func(pipe redis.Pipeliner) { pipe.Del(t.ctx, doomed...) })

	t.overlay[collection] = &overlay{
		cleared: true,
		records: make(map[string][]byte),
		entries: make(map[string]map[string][]string),
	}
	delete(t.touched, collection)
	return nil
}

// Commit applies every buffered write in one MULTI/EXEC.
func (t *tx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	defer t.engine.unlock(t.mode)

	if t.mode != recordstore.ReadWrite || len(t.ops) == 0 {
		return nil
	}
	_, err := t.engine.client.TxPipelined(t.ctx, func(pipe redis.Pipeliner) error {
		for _, op := range t.ops {
			op(pipe)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.engine.unlock(t.mode)
	return nil
}
