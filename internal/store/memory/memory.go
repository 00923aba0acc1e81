// Package memory is the in-process record engine. It backs tests and is the
// fallback when the configured store cannot be opened.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

// Engine keeps every collection in maps guarded by one RWMutex.
// Read-only transactions share the read lock; a read-write transaction holds
// the write lock and works on copy-on-write collections swapped in on Commit.
type Engine struct {
	mu          sync.RWMutex
	version     int
	collections map[string]*collection
	closed      bool
}

type collection struct {
	indexes []recordstore.Index
	records map[string][]byte
	entries map[string]map[string][]string           // key -> index -> values
	byIndex map[string]map[string]map[string]struct{} // index -> value -> keys
}

func newCollection() *collection {
	return &collection{
		records: make(map[string][]byte),
		entries: make(map[string]map[string][]string),
		byIndex: make(map[string]map[string]map[string]struct{}),
	}
}

func (c *collection) clone() *collection {
	out := &collection{
		indexes: slices.Clone(c.indexes),
		records: maps.Clone(c.records),
		entries: maps.Clone(c.entries),
		byIndex: make(map[string]map[string]map[string]struct{}, len(c.byIndex)),
	}
	for name, values := range c.byIndex {
		vs := make(map[string]map[string]struct{}, len(values))
		for v, keys := range values {
			vs[v] = maps.Clone(keys)
		}
		out.byIndex[name] = vs
	}
	return out
}

func (c *collection) unindex(key string) {
	for name, values := range c.entries[key] {
		for _, v := range values {
			keys := c.byIndex[name][v]
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byIndex[name], v)
			}
		}
	}
	delete(c.entries, key)
}

// New returns an empty engine at schema version 0.
func New() *Engine {
	return &Engine{collections: make(map[string]*collection)}
}

func (e *Engine) Name() string { return "memory" }

func (e *Engine) SchemaVersion(_ context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version, nil
}

func (e *Engine) Begin(ctx context.Context, mode recordstore.Mode) (recordstore.EngineTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mode == recordstore.ReadWrite {
		e.mu.Lock()
	} else {
		e.mu.RLock()
	}
	if e.closed {
		e.unlock(mode)
		return nil, recordstore.Unavailable(e.Name(), fmt.Errorf("engine closed"))
	}
	return &tx{
		engine:  e,
		mode:    mode,
		version: e.version,
		work:    make(map[string]*collection),
	}, nil
}

func (e *Engine) unlock(mode recordstore.Mode) {
	if mode == recordstore.ReadWrite {
		e.mu.Unlock()
	} else {
		e.mu.RUnlock()
	}
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type tx struct {
	engine  *Engine
	mode    recordstore.Mode
	version int
	work    map[string]*collection // collections touched by this transaction
	done    bool
}

func (t *tx) read(name string) (*collection, error) {
	if c, ok := t.work[name]; ok {
		return c, nil
	}
	if c, ok := t.engine.collections[name]; ok {
		return c, nil
	}
	return nil, recordstore.UnknownCollection(name)
}

func (t *tx) write(name string) (*collection, error) {
	if t.mode != recordstore.ReadWrite {
		return nil, recordstore.ErrReadOnly
	}
	if c, ok := t.work[name]; ok {
		return c, nil
	}
	c, ok := t.engine.collections[name]
	if !ok {
		return nil, recordstore.UnknownCollection(name)
	}
	c = c.clone()
	t.work[name] = c
	return c, nil
}

func (t *tx) Collections() ([]string, error) {
	names := slices.Collect(maps.Keys(t.engine.collections))
	for name := range t.work {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (t *tx) HasCollection(name string) (bool, error) {
	_, err := t.read(name)
	return err == nil, nil
}

func (t *tx) CreateCollection(name string) error {
	if t.mode != recordstore.ReadWrite {
		return recordstore.ErrReadOnly
	}
	if ok, _ := t.HasCollection(name); ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	t.work[name] = newCollection()
	return nil
}

func (t *tx) Indexes(name string) ([]recordstore.Index, error) {
	c, err := t.read(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(c.indexes), nil
}

func (t *tx) CreateIndex(name string, idx recordstore.Index) error {
	c, err := t.write(name)
	if err != nil {
		return err
	}
	c.indexes = append(c.indexes, idx)
	c.byIndex[idx.Name] = make(map[string]map[string]struct{})
	return nil
}

func (t *tx) SetSchemaVersion(v int) error {
	if t.mode != recordstore.ReadWrite {
		return recordstore.ErrReadOnly
	}
	t.version = v
	return nil
}

func (t *tx) Get(name, key string) ([]byte, error) {
	c, err := t.read(name)
	if err != nil {
		return nil, err
	}
	body, ok := c.records[key]
	if !ok {
		return nil, recordstore.NotFound(name, key)
	}
	return slices.Clone(body), nil
}

func (t *tx) GetAll(name string) ([]recordstore.Entry, error) {
	c, err := t.read(name)
	if err != nil {
		return nil, err
	}
	return entriesFor(c, slices.Sorted(maps.Keys(c.records))), nil
}

func (t *tx) GetByIndex(name, index, value string) ([]recordstore.Entry, error) {
	c, err := t.read(name)
	if err != nil {
		return nil, err
	}
	keys := slices.Sorted(maps.Keys(c.byIndex[index][value]))
	return entriesFor(c, keys), nil
}

func entriesFor(c *collection, keys []string) []recordstore.Entry {
	out := make([]recordstore.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, recordstore.Entry{Key: k, Body: slices.Clone(c.records[k])})
	}
	return out
}

func (t *tx) Put(name, key string, body []byte, entries map[string][]string) error {
	c, err := t.write(name)
	if err != nil {
		return err
	}
	c.unindex(key)
	c.records[key] = slices.Clone(body)
	if len(entries) > 0 {
		c.entries[key] = entries
	}
	for index, values := range entries {
		if c.byIndex[index] == nil {
			c.byIndex[index] = make(map[string]map[string]struct{})
		}
		for _, v := range values {
			if c.byIndex[index][v] == nil {
				c.byIndex[index][v] = make(map[string]struct{})
			}
			c.byIndex[index][v][key] = struct{}{}
		}
	}
	return nil
}

func (t *tx) Delete(name, key string) error {
	c, err := t.write(name)
	if err != nil {
		return err
	}
	c.unindex(key)
	delete(c.records, key)
	return nil
}

func (t *tx) Clear(name string) error {
	c, err := t.write(name)
	if err != nil {
		return err
	}
	fresh := newCollection()
	fresh.indexes = c.indexes
	for _, idx := range c.indexes {
		fresh.byIndex[idx.Name] = make(map[string]map[string]struct{})
	}
	t.work[name] = fresh
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	if t.mode == recordstore.ReadWrite {
		for name, c := range t.work {
			t.engine.collections[name] = c
		}
		t.engine.version = t.version
	}
	t.engine.unlock(t.mode)
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
