package pipeline

import (
	"sync"

	"characterchat-backend/internal/models"
)

// State holds the per-thread message sequences the UI renders. Lists are
// copy-on-write: every mutation builds a fresh slice and swaps it in under
// the lock, so a reader never observes a half-applied update and a published
// snapshot never changes after the fact.
//
// Subscribers receive the new snapshot after every publish. Callbacks run
// outside the lock, in publish order per thread.
type State struct {
	mu       sync.RWMutex
	byThread map[string][]models.Message
	subs     map[int]func(threadID string, messages []models.Message)
	nextSub  int
}

// NewState creates an empty state store.
func NewState() *State {
	return &State{
		byThread: make(map[string][]models.Message),
		subs:     make(map[int]func(string, []models.Message)),
	}
}

// Messages returns the current snapshot for a thread. The returned slice is
// never mutated afterwards; callers may hold it as long as they like.
func (s *State) Messages(threadID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byThread[threadID]
}

// Subscribe registers fn to run after every publish. The returned function
// removes the subscription.
func (s *State) Subscribe(fn func(threadID string, messages []models.Message)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *State) publishLocked(threadID string, messages []models.Message) []func(string, []models.Message) {
	s.byThread[threadID] = messages
	subs := make([]func(string, []models.Message), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notifyAll(subs []func(string, []models.Message), threadID string, messages []models.Message) {
	for _, fn := range subs {
		fn(threadID, messages)
	}
}

// Replace swaps in a whole new sequence for the thread.
func (s *State) Replace(threadID string, messages []models.Message) {
	s.mu.Lock()
	subs := s.publishLocked(threadID, messages)
	s.mu.Unlock()
	notifyAll(subs, threadID, messages)
}

// Append adds messages to the end of the thread's sequence in one publish.
func (s *State) Append(threadID string, messages ...models.Message) {
	s.mu.Lock()
	current := s.byThread[threadID]
	next := make([]models.Message, 0, len(current)+len(messages))
	next = append(next, current...)
	next = append(next, messages...)
	subs := s.publishLocked(threadID, next)
	s.mu.Unlock()
	notifyAll(subs, threadID, next)
}

// Update applies fn to the message with the given id and publishes the
// result as a single state change. Content growth, status flips and the
// final temporary-to-durable id swap all go through here, so consumers can
// never see an intermediate where a message is duplicated or missing.
func (s *State) Update(threadID, messageID string, fn func(models.Message) models.Message) {
	s.mu.Lock()
	current := s.byThread[threadID]
	next := make([]models.Message, len(current))
	copy(next, current)
	found := false
	for i := range next {
		if next[i].ID == messageID {
			next[i] = fn(next[i])
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return
	}
	subs := s.publishLocked(threadID, next)
	s.mu.Unlock()
	notifyAll(subs, threadID, next)
}
