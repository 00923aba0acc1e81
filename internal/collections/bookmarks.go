package collections

import (
	"context"
	"errors"
	"sync"

	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

// recordKey decodes only the key of a record.
type recordKey struct {
	ID string `json:"id"`
}

// Bookmarks is the accessor over the bookmarks collection.
type Bookmarks struct {
	c collection[domain.BookmarkRecord]

	mu         sync.Mutex
	backfilled bool
}

func NewBookmarks(store *recordstore.Store) *Bookmarks {
	return &Bookmarks{c: collection[domain.BookmarkRecord]{store: store, name: BookmarksCollection}}
}

func (b *Bookmarks) GetAll(ctx context.Context) ([]domain.Bookmark, error) {
	rs, err := b.c.GetAll(ctx)
	return domain.Unwrap(rs), err
}

func (b *Bookmarks) Get(ctx context.Context, id string) (domain.Bookmark, error) {
	r, err := b.c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Bookmark, nil
}

func (b *Bookmarks) Put(ctx context.Context, bm domain.Bookmark) error {
	return b.c.Put(ctx, domain.BookmarkRecord{Bookmark: bm})
}

func (b *Bookmarks) PutMany(ctx context.Context, bms []domain.Bookmark) error {
	return b.c.PutMany(ctx, domain.Records(bms))
}

func (b *Bookmarks) DeleteByKey(ctx context.Context, id string) error {
	return b.c.DeleteByKey(ctx, id)
}

func (b *Bookmarks) DeleteMany(ctx context.Context, ids []string) error {
	return b.c.DeleteMany(ctx, ids)
}

func (b *Bookmarks) Clear(ctx context.Context) error {
	return b.c.Clear(ctx)
}

// ForScope returns the bookmarks owned by one workspace, ordered by id.
func (b *Bookmarks) ForScope(ctx context.Context, scope string) ([]domain.Bookmark, error) {
	if err := b.backfill(ctx); err != nil {
		return nil, err
	}
	rs, err := b.c.byIndex(ctx, ScopeIndex, scope)
	return domain.Unwrap(rs), err
}

// Children returns the direct children of parentID. An empty parentID
// selects the root level, which has no index entry and is found by scan.
func (b *Bookmarks) Children(ctx context.Context, parentID string) ([]domain.Bookmark, error) {
	if parentID != "" {
		rs, err := b.c.byIndex(ctx, ParentIndex, parentID)
		return domain.Unwrap(rs), err
	}
	all, err := b.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var roots []domain.Bookmark
	for _, bm := range all {
		if bm.Meta().ParentID == "" {
			roots = append(roots, bm)
		}
	}
	return roots, nil
}

// ClaimUnscoped assigns every bookmark without a scope to scope and returns
// how many were claimed.
func (b *Bookmarks) ClaimUnscoped(ctx context.Context, scope string) (int, error) {
	if scope == "" {
		return 0, errors.New("claim unscoped bookmarks: empty scope")
	}
	claimed := 0
	err := b.c.store.RunTransaction(ctx, []string{BookmarksCollection}, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
		claimed = 0
		raws, err := tx.GetAll(BookmarksCollection)
		if err != nil {
			return err
		}
		rs, err := recordstore.Decode[domain.BookmarkRecord](raws)
		if err != nil {
			return err
		}
		for _, r := range rs {
			if r.Meta().Scope != "" {
				continue
			}
			r.Meta().Scope = scope
			if err := tx.Put(BookmarksCollection, r); err != nil {
				return err
			}
			claimed++
		}
		return nil
	})
	return claimed, err
}

// DeleteScope removes every bookmark of scope in one transaction.
func (b *Bookmarks) DeleteScope(ctx context.Context, scope string) error {
	if err := b.backfill(ctx); err != nil {
		return err
	}
	return b.c.store.RunTransaction(ctx, []string{BookmarksCollection}, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
		raws, err := tx.GetAllByIndex(BookmarksCollection, ScopeIndex, scope)
		if err != nil {
			return err
		}
		keys, err := recordstore.Decode[recordKey](raws)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := tx.Delete(BookmarksCollection, k.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// backfill runs once per accessor. It rewrites every scoped row that the
// scope index does not list yet, which happens for rows stored before the
// index existed or written with the legacy workspaceId field.
func (b *Bookmarks) backfill(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backfilled {
		return nil
	}

	err := b.c.store.RunTransaction(ctx, []string{BookmarksCollection}, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
		raws, err := tx.GetAll(BookmarksCollection)
		if err != nil {
			return err
		}
		rs, err := recordstore.Decode[domain.BookmarkRecord](raws)
		if err != nil {
			return err
		}

		indexed := make(map[string]map[string]bool)
		for _, r := range rs {
			scope := r.Meta().Scope
			if scope == "" {
				continue
			}
			ids, ok := indexed[scope]
			if !ok {
				listed, err := tx.GetAllByIndex(BookmarksCollection, ScopeIndex, scope)
				if err != nil {
					return err
				}
				ids = make(map[string]bool, len(listed))
				for _, raw := range listed {
					if lr, err := recordstore.DecodeOne[domain.BookmarkRecord](raw); err == nil {
						ids[lr.Meta().ID] = true
					}
				}
				indexed[scope] = ids
			}
			if ids[r.Meta().ID] {
				continue
			}
			if err := tx.Put(BookmarksCollection, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.backfilled = true
	return nil
}
