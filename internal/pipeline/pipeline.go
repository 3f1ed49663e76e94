// Package pipeline implements the client-side message pipeline: optimistic
// insertion of a user message and an assistant placeholder, persistence of
// the user turn, the relayed token stream, and the final reconciliation of
// the placeholder with its store-assigned id.
//
// All visible state flows through a State store with copy-on-write snapshots;
// nothing here is exposed through shared mutable references.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"characterchat-backend/internal/models"

	"github.com/google/uuid"
)

// ConversationStore is the persistence capability the pipeline consumes.
// Inserts return the store-assigned message id.
type ConversationStore interface {
	InsertMessage(ctx context.Context, threadID string, role models.Role, content string) (string, error)
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
}

// Relay opens the server-relayed token stream for a chat history. The
// returned reader yields plain decoded text, not provider frames.
type Relay interface {
	StreamChat(ctx context.Context, threadID string, messages []models.ChatMessage) (io.ReadCloser, error)
}

// streamHandle tracks one live token stream so a thread switch can cancel it.
type streamHandle struct {
	body io.ReadCloser

	mu        sync.Mutex
	cancelled bool
}

func (h *streamHandle) cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	// Close errors are swallowed: cancellation is best-effort.
	_ = h.body.Close()
}

func (h *streamHandle) wasCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Pipeline orchestrates message sends for all threads of one session.
type Pipeline struct {
	store  ConversationStore
	relay  Relay
	state  *State
	notify func(message string)

	mu      sync.Mutex
	sendMu  map[string]*sync.Mutex
	streams map[string]*streamHandle
	loadGen uint64
}

// New creates a pipeline. notify, if non-nil, receives human-readable
// failure descriptions suitable for a toast-style notification; it is the
// only way errors leave the pipeline besides message status flags.
func New(store ConversationStore, relay Relay, notify func(message string)) *Pipeline {
	return &Pipeline{
		store:   store,
		relay:   relay,
		state:   NewState(),
		notify:  notify,
		sendMu:  make(map[string]*sync.Mutex),
		streams: make(map[string]*streamHandle),
	}
}

// State returns the subscribable message state.
func (p *Pipeline) State() *State {
	return p.state
}

// Messages returns the current snapshot for a thread.
func (p *Pipeline) Messages(threadID string) []models.Message {
	return p.state.Messages(threadID)
}

func (p *Pipeline) report(message string) {
	log.Printf("WARN [Pipeline] %s", message)
	if p.notify != nil {
		p.notify(message)
	}
}

// threadLock returns the per-thread send mutex, creating it on first use.
// Sends within one thread are serialized so two concurrent sends cannot
// interleave their history construction; sends on different threads run
// concurrently.
func (p *Pipeline) threadLock(threadID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.sendMu[threadID]
	if !ok {
		m = &sync.Mutex{}
		p.sendMu[threadID] = m
	}
	return m
}

func (p *Pipeline) trackStream(threadID string, h *streamHandle) {
	p.mu.Lock()
	p.streams[threadID] = h
	p.mu.Unlock()
}

func (p *Pipeline) untrackStream(threadID string, h *streamHandle) {
	p.mu.Lock()
	if p.streams[threadID] == h {
		delete(p.streams, threadID)
	}
	p.mu.Unlock()
}

// CancelStream aborts the live token stream for a thread, if any. Already
// accumulated text and persisted state are left untouched.
func (p *Pipeline) CancelStream(threadID string) {
	p.mu.Lock()
	h := p.streams[threadID]
	delete(p.streams, threadID)
	p.mu.Unlock()
	if h != nil {
		h.cancel()
	}
}

func setStatus(status models.MessageStatus) func(models.Message) models.Message {
	return func(m models.Message) models.Message {
		m.Status = status
		return m
	}
}

// SendMessage runs the full send sequence for one user input. It blocks
// until the assistant response is fully streamed and persisted (or a stage
// fails); callers drive it from their own goroutine. Failures never
// propagate as errors or panics: they surface as a "failed" message status
// plus an optional notification.
//
// Empty or whitespace-only input is a no-op with no side effects.
func (p *Pipeline) SendMessage(ctx context.Context, input, threadID, systemPrompt string) {
	text := strings.TrimSpace(input)
	if text == "" {
		return
	}

	lock := p.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	userID := "temp-" + uuid.NewString()
	assistantID := "assistant-" + uuid.NewString()

	// Snapshot taken before the optimistic append: the outbound history is
	// the pre-send list plus the new user turn.
	history := p.state.Messages(threadID)

	// Optimistic update. Both messages become visible in one publish, before
	// any network round trip.
	p.state.Append(threadID,
		models.Message{ID: userID, Role: models.RoleUser, Content: text, Status: models.StatusSending},
		models.Message{ID: assistantID, Role: models.RoleAssistant, Content: "", Status: models.StatusStreaming},
	)

	if _, err := p.store.InsertMessage(ctx, threadID, models.RoleUser, text); err != nil {
		p.state.Update(threadID, userID, setStatus(models.StatusFailed))
		p.report(fmt.Sprintf("Failed to save your message: %v", err))
		return
	}
	p.state.Update(threadID, userID, setStatus(models.StatusSent))

	outbound := make([]models.ChatMessage, 0, len(history)+2)
	if systemPrompt != "" {
		outbound = append(outbound, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		outbound = append(outbound, models.ChatMessage{Role: m.Role, Content: m.Content})
	}
	outbound = append(outbound, models.ChatMessage{Role: models.RoleUser, Content: text})

	body, err := p.relay.StreamChat(ctx, threadID, outbound)
	if err != nil {
		p.state.Update(threadID, assistantID, setStatus(models.StatusFailed))
		p.report(fmt.Sprintf("Chat request failed: %v", err))
		return
	}

	handle := &streamHandle{body: body}
	p.trackStream(threadID, handle)
	defer p.untrackStream(threadID, handle)

	var assistantText strings.Builder
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			assistantText.Write(buf[:n])
			content := assistantText.String()
			p.state.Update(threadID, assistantID, func(m models.Message) models.Message {
				m.Content = content
				return m
			})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if handle.wasCancelled() {
				// Thread was switched away; keep whatever arrived, stop quietly.
				return
			}
			body.Close()
			p.state.Update(threadID, assistantID, setStatus(models.StatusFailed))
			p.report(fmt.Sprintf("Stream interrupted: %v", readErr))
			return
		}
	}
	body.Close()

	persistedID, err := p.store.InsertMessage(ctx, threadID, models.RoleAssistant, assistantText.String())
	if err != nil {
		// Accumulated text stays visible; only the status flips.
		p.state.Update(threadID, assistantID, setStatus(models.StatusFailed))
		p.report(fmt.Sprintf("Failed to save the reply: %v", err))
		return
	}

	// One publish swaps the temporary id for the durable one and marks the
	// message sent, so no snapshot ever shows a duplicate or a gap.
	p.state.Update(threadID, assistantID, func(m models.Message) models.Message {
		m.ID = persistedID
		m.Status = models.StatusSent
		return m
	})
}

// LoadMessages replaces the thread's in-memory sequence with the persisted
// one. A load that resolves after another LoadMessages call has started is
// dropped, so switching threads quickly cannot apply a stale history.
func (p *Pipeline) LoadMessages(ctx context.Context, threadID string) error {
	p.mu.Lock()
	p.loadGen++
	gen := p.loadGen
	p.mu.Unlock()

	messages, err := p.store.ListMessages(ctx, threadID)

	p.mu.Lock()
	stale := gen != p.loadGen
	p.mu.Unlock()
	if stale {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load messages for thread %s: %w", threadID, err)
	}

	for i := range messages {
		messages[i].Status = models.StatusSent
	}
	p.state.Replace(threadID, messages)
	return nil
}
