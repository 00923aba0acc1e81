package recordstore

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/vsdesk/internal/logger"
)

// OpenFunc creates the engine behind a Store.
type OpenFunc func(ctx context.Context) (Engine, error)

// Opener hands out one shared Store per process. Concurrent Open calls wait
// on the same in-flight attempt, so the engine is created and migrated once.
// A failed attempt is not remembered and the next Open retries.
type Opener struct {
	open  OpenFunc
	steps []Migration
	log   logger.Logger

	mu    sync.Mutex
	store *Store
	call  *openCall
}

type openCall struct {
	done  chan struct{}
	store *Store
	err   error
}

func NewOpener(open OpenFunc, steps []Migration, log logger.Logger) *Opener {
	return &Opener{open: open, steps: steps, log: log}
}

// Open returns the shared Store, opening and migrating it on first use.
func (o *Opener) Open(ctx context.Context) (*Store, error) {
	o.mu.Lock()
	if o.store != nil {
		s := o.store
		o.mu.Unlock()
		return s, nil
	}
	c := o.call
	if c == nil {
		c = &openCall{done: make(chan struct{})}
		o.call = c
		go o.run(context.WithoutCancel(ctx), c)
	}
	o.mu.Unlock()

	select {
	case <-c.done:
		return c.store, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Opener) run(ctx context.Context, c *openCall) {
	s, err := o.openAndMigrate(ctx)

	o.mu.Lock()
	if err == nil {
		o.store = s
	}
	o.call = nil
	c.store, c.err = s, err
	o.mu.Unlock()
	close(c.done)
}

func (o *Opener) openAndMigrate(ctx context.Context) (*Store, error) {
	engine, err := o.open(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, engine, o.steps, o.log); err != nil {
		_ = engine.Close()
		return nil, err
	}
	s, err := newStore(ctx, engine)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the shared Store if one was opened.
func (o *Opener) Close() error {
	o.mu.Lock()
	s := o.store
	o.store = nil
	o.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
