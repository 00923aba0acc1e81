package recordstore

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/vsdesk/internal/logger"
)

// Migration is one additive schema step. Apply must be idempotent: it checks
// for what it creates and never rewrites existing rows.
type Migration struct {
	Version int
	Name    string
	Apply   func(tx EngineTx) error
}

// Latest returns the highest version declared by steps.
func Latest(steps []Migration) int {
	if len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].Version
}

func validate(steps []Migration) error {
	for i, m := range steps {
		if m.Version != i+1 {
			return fmt.Errorf("migration %q has version %d, want %d", m.Name, m.Version, i+1)
		}
		if m.Apply == nil {
			return fmt.Errorf("migration %q has no Apply", m.Name)
		}
	}
	return nil
}

// Migrate brings the engine from its stored version to Latest(steps). Each
// step commits together with its version stamp, so an interrupted upgrade
// resumes at the first step that did not commit.
func Migrate(ctx context.Context, engine Engine, steps []Migration, log logger.Logger) (int, error) {
	if err := validate(steps); err != nil {
		return 0, err
	}

	current, err := engine.SchemaVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	target := Latest(steps)
	if current > target {
		return current, fmt.Errorf("%w: stored %d, supported up to %d", ErrUnsupportedSchema, current, target)
	}

	for _, m := range steps[current:] {
		if err := applyStep(ctx, engine, m); err != nil {
			return current, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		current = m.Version
		log.Info("schema migrated",
			logger.String("engine", engine.Name()),
			logger.Int("version", m.Version),
			logger.String("step", m.Name))
	}
	return current, nil
}

func applyStep(ctx context.Context, engine Engine, m Migration) error {
	tx, err := engine.Begin(ctx, ReadWrite)
	if err != nil {
		return err
	}
	if err := m.Apply(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.SetSchemaVersion(m.Version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// EnsureCollection creates the collection unless it already exists.
func EnsureCollection(tx EngineTx, name string) error {
	ok, err := tx.HasCollection(name)
	if err != nil || ok {
		return err
	}
	return tx.CreateCollection(name)
}

// EnsureIndex creates the index unless the collection already declares it.
// Rows written before the index existed are not backfilled here.
func EnsureIndex(tx EngineTx, collection string, idx Index) error {
	ok, err := HasIndex(tx, collection, idx.Name)
	if err != nil || ok {
		return err
	}
	return tx.CreateIndex(collection, idx)
}
