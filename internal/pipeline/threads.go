package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"characterchat-backend/internal/characters"
	"characterchat-backend/internal/models"
)

// ThreadStore is the thread capability the guard consumes. All calls are
// scoped to the session's user.
type ThreadStore interface {
	ListThreads(ctx context.Context) ([]models.ThreadResponse, error)
	CreateThread(ctx context.Context, title string) (*models.ThreadResponse, error)
}

// Threads ensures a thread is selected before the pipeline may run, and owns
// which thread that is. Selecting away from a thread with a live stream
// cancels that stream; the newly selected thread's history is loaded through
// the pipeline's stale-guarded read path.
type Threads struct {
	store    ThreadStore
	pipeline *Pipeline

	mu       sync.Mutex
	threads  []models.ThreadResponse
	selected string
	loadGen  uint64
}

// NewThreads creates the thread guard on top of a pipeline.
func NewThreads(store ThreadStore, p *Pipeline) *Threads {
	return &Threads{
		store:    store,
		pipeline: p,
	}
}

// Selected returns the currently selected thread id, or "" when none is.
func (t *Threads) Selected() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected
}

// List returns the last loaded thread list.
func (t *Threads) List() []models.ThreadResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ThreadResponse, len(t.threads))
	copy(out, t.threads)
	return out
}

// Load fetches the user's threads and selects the first one when nothing is
// selected yet. A load that resolves after a newer Load call is dropped.
func (t *Threads) Load(ctx context.Context) error {
	t.mu.Lock()
	t.loadGen++
	gen := t.loadGen
	t.mu.Unlock()

	threads, err := t.store.ListThreads(ctx)

	t.mu.Lock()
	if gen != t.loadGen {
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("load threads: %w", err)
	}
	t.threads = threads
	selectFirst := t.selected == "" && len(threads) > 0
	var first string
	if selectFirst {
		first = threads[0].ID.String()
	}
	t.mu.Unlock()

	if selectFirst {
		return t.Select(ctx, first)
	}
	return nil
}

// Select makes threadID the active thread, cancels the previous thread's
// live stream and loads the new thread's persisted history.
func (t *Threads) Select(ctx context.Context, threadID string) error {
	t.mu.Lock()
	previous := t.selected
	t.selected = threadID
	t.mu.Unlock()

	if previous != "" && previous != threadID {
		t.pipeline.CancelStream(previous)
	}
	return t.pipeline.LoadMessages(ctx, threadID)
}

// AvailableCharacters returns the characters the user has no thread with yet.
func (t *Threads) AvailableCharacters() []characters.Character {
	t.mu.Lock()
	threads := t.threads
	t.mu.Unlock()

	available := make([]characters.Character, 0, len(characters.Defaults))
	for _, c := range characters.Defaults {
		taken := false
		for i := range threads {
			if strings.EqualFold(threads[i].Title, c.Title) {
				taken = true
				break
			}
		}
		if !taken {
			available = append(available, c)
		}
	}
	return available
}

// StartFromCharacter begins a conversation with a character. If a thread
// with that character's title already exists it is selected instead of
// creating a duplicate. Returns the selected thread id.
func (t *Threads) StartFromCharacter(ctx context.Context, c characters.Character) (string, error) {
	t.mu.Lock()
	for i := range t.threads {
		if strings.EqualFold(t.threads[i].Title, c.Title) {
			id := t.threads[i].ID.String()
			t.mu.Unlock()
			return id, t.Select(ctx, id)
		}
	}
	t.mu.Unlock()

	thread, err := t.store.CreateThread(ctx, c.Title)
	if err != nil {
		return "", fmt.Errorf("start thread for %q: %w", c.Title, err)
	}

	t.mu.Lock()
	t.threads = append(t.threads, *thread)
	t.mu.Unlock()

	id := thread.ID.String()
	return id, t.Select(ctx, id)
}
