package recordstore

import "context"

// Mode selects the access mode of a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Index is a secondary, non-unique lookup on a top-level JSON field.
type Index struct {
	Name  string `json:"name"`
	Field string `json:"field"`
}

// Entry is one stored record as the engine sees it.
type Entry struct {
	Key  string
	Body []byte
}

// Engine is the physical storage behind a Store.
//
// Engines serialize transactions themselves; a Store never nests Begin calls
// on the same goroutine.
type Engine interface {
	Name() string
	SchemaVersion(ctx context.Context) (int, error)
	Begin(ctx context.Context, mode Mode) (EngineTx, error)
	Close() error
}

// EngineTx is a single engine transaction. Schema verbs are only used by
// migrations; data verbs by Store transactions.
//
// GetAll and GetByIndex return entries ordered by key. Put replaces the
// record and all of its previous index entries.
type EngineTx interface {
	Collections() ([]string, error)
	HasCollection(name string) (bool, error)
	CreateCollection(name string) error
	Indexes(collection string) ([]Index, error)
	CreateIndex(collection string, idx Index) error
	SetSchemaVersion(v int) error

	Get(collection, key string) ([]byte, error)
	GetAll(collection string) ([]Entry, error)
	GetByIndex(collection, index, value string) ([]Entry, error)
	Put(collection, key string, body []byte, entries map[string][]string) error
	Delete(collection, key string) error
	Clear(collection string) error

	Commit() error
	Rollback() error
}

// HasIndex reports whether collection declares an index called name.
func HasIndex(tx EngineTx, collection, name string) (bool, error) {
	idxs, err := tx.Indexes(collection)
	if err != nil {
		return false, err
	}
	for _, idx := range idxs {
		if idx.Name == name {
			return true, nil
		}
	}
	return false, nil
}
