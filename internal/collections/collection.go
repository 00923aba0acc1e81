package collections

import (
	"context"

	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

// collection is the typed verb set shared by every accessor.
type collection[T any] struct {
	store *recordstore.Store
	name  string
}

func (c collection[T]) GetAll(ctx context.Context) ([]T, error) {
	raws, err := c.store.GetAll(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return recordstore.Decode[T](raws)
}

// Get returns recordstore.ErrRecordNotFound when no record has id.
func (c collection[T]) Get(ctx context.Context, id string) (T, error) {
	raw, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return recordstore.DecodeOne[T](raw)
}

func (c collection[T]) Put(ctx context.Context, record T) error {
	return c.store.Put(ctx, c.name, record)
}

// PutMany writes every record in one transaction.
func (c collection[T]) PutMany(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}
	return c.store.RunTransaction(ctx, []string{c.name}, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
		for _, r := range records {
			if err := tx.Put(c.name, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c collection[T]) DeleteByKey(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}

// DeleteMany removes every id in one transaction. Missing ids are ignored.
func (c collection[T]) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.store.RunTransaction(ctx, []string{c.name}, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(c.name, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c collection[T]) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.name)
}

func (c collection[T]) byIndex(ctx context.Context, index, value string) ([]T, error) {
	raws, err := c.store.GetAllByIndex(ctx, c.name, index, value)
	if err != nil {
		return nil, err
	}
	return recordstore.Decode[T](raws)
}
