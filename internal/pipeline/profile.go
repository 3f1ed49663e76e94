package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// ProfileStore is the profile capability the guard consumes.
type ProfileStore interface {
	UpsertProfile(ctx context.Context) error
}

// ProfileGuard ensures the user's profile row exists before threads are
// loaded or created. Ensure is idempotent; Ready flips once and stays set.
type ProfileGuard struct {
	store ProfileStore

	mu    sync.Mutex
	ready bool
}

// NewProfileGuard creates a profile guard.
func NewProfileGuard(store ProfileStore) *ProfileGuard {
	return &ProfileGuard{store: store}
}

// Ready reports whether the profile has been ensured.
func (g *ProfileGuard) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Ensure upserts the profile. Once it has succeeded, later calls return
// immediately.
func (g *ProfileGuard) Ensure(ctx context.Context) error {
	g.mu.Lock()
	if g.ready {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	if err := g.store.UpsertProfile(ctx); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	g.mu.Lock()
	g.ready = true
	g.mu.Unlock()
	return nil
}
