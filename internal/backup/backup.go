// Package backup exports the whole store to one JSON document and replaces
// the store from such a document.
package backup

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

// FormatVersion tags documents written by Export.
const FormatVersion = 2

// ErrInvalidImportFormat is returned before any write when a document is
// malformed or lacks a mandatory collection.
var ErrInvalidImportFormat = errors.New("invalid import format")

//go:embed schema.json
var schemaJSON []byte

// exported lists the collections a document carries. Themes stay local.
var exported = []string{
	collections.UsersCollection,
	collections.ProfilesCollection,
	collections.WorkspacesCollection,
	collections.BookmarksCollection,
}

// Document is the export format.
type Document struct {
	Version    int                     `json:"version"`
	Timestamp  int64                   `json:"timestamp"`
	Users      []domain.User           `json:"users"`
	Profiles   []domain.Profile        `json:"profiles"`
	Workspaces []domain.Workspace      `json:"workspaces"`
	Bookmarks  []domain.BookmarkRecord `json:"bookmarks"`
}

// Summary counts the records written by Import.
type Summary struct {
	Users      int `json:"users"`
	Profiles   int `json:"profiles"`
	Workspaces int `json:"workspaces"`
	Bookmarks  int `json:"bookmarks"`
}

type Service struct {
	store  *recordstore.Store
	schema *jsonschema.Schema
	logger logger.Logger
	now    func() time.Time
}

func New(store *recordstore.Store, log logger.Logger) (*Service, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &Service{store: store, schema: schema, logger: log, now: time.Now}, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("read import schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("import.json", doc); err != nil {
		return nil, fmt.Errorf("add import schema: %w", err)
	}
	schema, err := c.Compile("import.json")
	if err != nil {
		return nil, fmt.Errorf("compile import schema: %w", err)
	}
	return schema, nil
}

// Export reads every exported collection in one read-only transaction.
func (s *Service) Export(ctx context.Context) (Document, error) {
	doc := Document{Version: FormatVersion, Timestamp: domain.Millis(s.now())}
	err := s.store.RunTransaction(ctx, exported, recordstore.ReadOnly, func(tx *recordstore.Txn) error {
		var err error
		if doc.Users, err = readAll[domain.User](tx, collections.UsersCollection); err != nil {
			return err
		}
		if doc.Profiles, err = readAll[domain.Profile](tx, collections.ProfilesCollection); err != nil {
			return err
		}
		if doc.Workspaces, err = readAll[domain.Workspace](tx, collections.WorkspacesCollection); err != nil {
			return err
		}
		doc.Bookmarks, err = readAll[domain.BookmarkRecord](tx, collections.BookmarksCollection)
		return err
	})
	if err != nil {
		return Document{}, fmt.Errorf("export: %w", err)
	}

	s.logger.Info("store exported",
		logger.Int("users", len(doc.Users)),
		logger.Int("workspaces", len(doc.Workspaces)),
		logger.Int("bookmarks", len(doc.Bookmarks)))
	return doc, nil
}

// Import validates data and then, in one transaction, replaces every
// exported collection with the document's records. A document without
// bookmarks empties the bookmarks collection.
func (s *Service) Import(ctx context.Context, data []byte) (Summary, error) {
	doc, err := s.Decode(data)
	if err != nil {
		return Summary{}, err
	}

	err = s.store.RunTransaction(ctx, exported, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
		for _, name := range exported {
			if err := tx.Clear(name); err != nil {
				return err
			}
		}
		if err := putAll(tx, collections.UsersCollection, doc.Users); err != nil {
			return err
		}
		if err := putAll(tx, collections.ProfilesCollection, doc.Profiles); err != nil {
			return err
		}
		if err := putAll(tx, collections.WorkspacesCollection, doc.Workspaces); err != nil {
			return err
		}
		return putAll(tx, collections.BookmarksCollection, doc.Bookmarks)
	})
	if err != nil {
		return Summary{}, fmt.Errorf("import: %w", err)
	}

	sum := Summary{
		Users:      len(doc.Users),
		Profiles:   len(doc.Profiles),
		Workspaces: len(doc.Workspaces),
		Bookmarks:  len(doc.Bookmarks),
	}
	s.logger.Info("store imported",
		logger.Int("users", sum.Users),
		logger.Int("workspaces", sum.Workspaces),
		logger.Int("bookmarks", sum.Bookmarks))
	return sum, nil
}

// Decode validates data against the document schema and decodes it.
func (s *Service) Decode(data []byte) (Document, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidImportFormat, err)
	}
	if err := s.schema.Validate(inst); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidImportFormat, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidImportFormat, err)
	}
	if doc.Version > FormatVersion {
		return Document{}, fmt.Errorf("%w: version %d is newer than %d", ErrInvalidImportFormat, doc.Version, FormatVersion)
	}
	return doc, nil
}

func readAll[T any](tx *recordstore.Txn, collection string) ([]T, error) {
	raws, err := tx.GetAll(collection)
	if err != nil {
		return nil, err
	}
	return recordstore.Decode[T](raws)
}

func putAll[T any](tx *recordstore.Txn, collection string, records []T) error {
	for _, r := range records {
		if err := tx.Put(collection, r); err != nil {
			return err
		}
	}
	return nil
}
