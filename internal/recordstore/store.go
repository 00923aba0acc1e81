package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// Store is the shared, migrated handle over an Engine.
type Store struct {
	engine  Engine
	version int
	schema  map[string][]Index
}

// newStore snapshots the schema declared by the engine after migrations ran.
func newStore(ctx context.Context, engine Engine) (*Store, error) {
	version, err := engine.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := engine.Begin(ctx, ReadOnly)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	names, err := tx.Collections()
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	schema := make(map[string][]Index, len(names))
	for _, name := range names {
		idxs, err := tx.Indexes(name)
		if err != nil {
			return nil, fmt.Errorf("list indexes of %s: %w", name, err)
		}
		schema[name] = idxs
	}
	return &Store{engine: engine, version: version, schema: schema}, nil
}

// Engine returns the engine name, e.g. "sqlite".
func (s *Store) Engine() string { return s.engine.Name() }

// SchemaVersion returns the version the store was migrated to.
func (s *Store) SchemaVersion() int { return s.version }

// HasIndex reports whether the collection declares the named index.
func (s *Store) HasIndex(collection, name string) bool {
	return slices.ContainsFunc(s.schema[collection], func(idx Index) bool { return idx.Name == name })
}

func (s *Store) Close() error { return s.engine.Close() }

// GetAll returns every record of a collection ordered by key.
func (s *Store) GetAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := s.RunTransaction(ctx, []string{collection}, ReadOnly, func(tx *Txn) error {
		var err error
		out, err = tx.GetAll(collection)
		return err
	})
	return out, err
}

// Get returns the record stored under key, or ErrRecordNotFound.
func (s *Store) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.RunTransaction(ctx, []string{collection}, ReadOnly, func(tx *Txn) error {
		var err error
		out, err = tx.Get(collection, key)
		return err
	})
	return out, err
}

// GetAllByIndex returns the records whose indexed field matches value.
func (s *Store) GetAllByIndex(ctx context.Context, collection, index, value string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := s.RunTransaction(ctx, []string{collection}, ReadOnly, func(tx *Txn) error {
		var err error
		out, err = tx.GetAllByIndex(collection, index, value)
		return err
	})
	return out, err
}

// Put inserts or replaces record under its "id" field.
func (s *Store) Put(ctx context.Context, collection string, record any) error {
	return s.RunTransaction(ctx, []string{collection}, ReadWrite, func(tx *Txn) error {
		return tx.Put(collection, record)
	})
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	return s.RunTransaction(ctx, []string{collection}, ReadWrite, func(tx *Txn) error {
		return tx.Delete(collection, key)
	})
}

func (s *Store) Clear(ctx context.Context, collection string) error {
	return s.RunTransaction(ctx, []string{collection}, ReadWrite, func(tx *Txn) error {
		return tx.Clear(collection)
	})
}

// RunTransaction runs fn inside one engine transaction over the declared
// collections. Either every write made by fn commits or none does.
func (s *Store) RunTransaction(ctx context.Context, collections []string, mode Mode, fn func(tx *Txn) error) error {
	for _, c := range collections {
		if _, ok := s.schema[c]; !ok {
			return UnknownCollection(c)
		}
	}

	etx, err := s.engine.Begin(ctx, mode)
	if err != nil {
		return err
	}
	tx := &Txn{store: s, tx: etx, mode: mode, scope: collections}

	if err := fn(tx); err != nil {
		if rbErr := etx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if mode == ReadOnly {
		return etx.Rollback()
	}
	if err := etx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Txn is the view of a transaction handed to RunTransaction bodies.
type Txn struct {
	store *Store
	tx    EngineTx
	mode  Mode
	scope []string
}

func (t *Txn) check(collection string, write bool) error {
	if !slices.Contains(t.scope, collection) {
		return fmt.Errorf("%w: %s", ErrCollectionNotInScope, collection)
	}
	if write && t.mode != ReadWrite {
		return fmt.Errorf("%w: %s", ErrReadOnly, collection)
	}
	return nil
}

func (t *Txn) Get(collection, key string) (json.RawMessage, error) {
	if err := t.check(collection, false); err != nil {
		return nil, err
	}
	body, err := t.tx.Get(collection, key)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (t *Txn) GetAll(collection string) ([]json.RawMessage, error) {
	if err := t.check(collection, false); err != nil {
		return nil, err
	}
	entries, err := t.tx.GetAll(collection)
	if err != nil {
		return nil, err
	}
	return bodies(entries), nil
}

func (t *Txn) GetAllByIndex(collection, index, value string) ([]json.RawMessage, error) {
	if err := t.check(collection, false); err != nil {
		return nil, err
	}
	if !t.store.HasIndex(collection, index) {
		return nil, fmt.Errorf("collection %s has no index %q", collection, index)
	}
	entries, err := t.tx.GetByIndex(collection, index, value)
	if err != nil {
		return nil, err
	}
	return bodies(entries), nil
}

// Put encodes record as JSON, keys it by its "id" field and derives the
// index entries declared for the collection.
func (t *Txn) Put(collection string, record any) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	body, err := encode(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", collection, err)
	}
	key, entries, err := extract(body, t.store.schema[collection])
	if err != nil {
		return fmt.Errorf("%s: %w", collection, err)
	}
	return t.tx.Put(collection, key, body, entries)
}

func (t *Txn) Delete(collection, key string) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	return t.tx.Delete(collection, key)
}

func (t *Txn) Clear(collection string) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	return t.tx.Clear(collection)
}

func bodies(entries []Entry) []json.RawMessage {
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = json.RawMessage(e.Body)
	}
	return out
}

func encode(record any) ([]byte, error) {
	switch v := record.(type) {
	case json.RawMessage:
		return compact(v)
	case []byte:
		return compact(v)
	default:
		return json.Marshal(record)
	}
}

func compact(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extract returns the record key and, per declared index, the values the
// record contributes. Null or absent fields contribute nothing; arrays
// contribute one value per scalar element.
func extract(body []byte, indexes []Index) (string, map[string][]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", nil, fmt.Errorf("record is not a JSON object: %w", err)
	}

	var key string
	if raw, ok := fields["id"]; ok {
		_ = json.Unmarshal(raw, &key)
	}
	if key == "" {
		return "", nil, ErrMissingKey
	}

	entries := make(map[string][]string, len(indexes))
	for _, idx := range indexes {
		raw, ok := fields[idx.Field]
		if !ok {
			continue
		}
		if vals := IndexValues(raw); len(vals) > 0 {
			entries[idx.Name] = vals
		}
	}
	return key, entries, nil
}

// IndexValues converts a JSON value to its index keys.
func IndexValues(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		out := make([]string, 0, len(arr))
		for _, el := range arr {
			if s, ok := scalar(el); ok {
				out = append(out, s)
			}
		}
		return out
	}
	if s, ok := scalar(v); ok {
		return []string{s}
	}
	return nil
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// Decode unmarshals a batch of raw records into T.
func Decode[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// DecodeOne unmarshals a single raw record into T.
func DecodeOne[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode record: %w", err)
	}
	return v, nil
}
