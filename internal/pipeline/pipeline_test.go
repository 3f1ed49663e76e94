package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"characterchat-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type insertCall struct {
	threadID string
	role     models.Role
	content  string
}

type fakeStore struct {
	mu         sync.Mutex
	inserts    []insertCall
	insertErr  map[models.Role]error
	nextID     int
	listResult map[string][]models.Message
	listErr    error

	// When set, InsertMessage signals insertStarted and blocks until
	// insertRelease is closed.
	insertStarted chan struct{}
	insertRelease chan struct{}

	// When set, ListMessages signals listStarted and blocks until the
	// matching release channel is closed.
	listStarted map[string]chan struct{}
	listRelease map[string]chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		insertErr:  make(map[models.Role]error),
		listResult: make(map[string][]models.Message),
	}
}

func (s *fakeStore) InsertMessage(ctx context.Context, threadID string, role models.Role, content string) (string, error) {
	if s.insertStarted != nil {
		s.insertStarted <- struct{}{}
		<-s.insertRelease
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[role]; err != nil {
		return "", err
	}
	s.inserts = append(s.inserts, insertCall{threadID: threadID, role: role, content: content})
	s.nextID++
	return fmt.Sprintf("db-%d", s.nextID), nil
}

func (s *fakeStore) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	if started, ok := s.listStarted[threadID]; ok {
		started <- struct{}{}
		<-s.listRelease[threadID]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.listResult[threadID], nil
}

func (s *fakeStore) insertCalls() []insertCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]insertCall, len(s.inserts))
	copy(out, s.inserts)
	return out
}

type fakeRelay struct {
	mu       sync.Mutex
	err      error
	chunks   []string
	requests [][]models.ChatMessage
	body     io.ReadCloser
}

func (r *fakeRelay) StreamChat(ctx context.Context, threadID string, messages []models.ChatMessage) (io.ReadCloser, error) {
	r.mu.Lock()
	r.requests = append(r.requests, messages)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.body != nil {
		return r.body, nil
	}
	return newChunkReader(r.chunks), nil
}

func (r *fakeRelay) calls() [][]models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// chunkReader yields exactly one configured chunk per Read call, so each
// chunk is observed as its own content mutation.
type chunkReader struct {
	mu     sync.Mutex
	chunks []string
}

func newChunkReader(chunks []string) *chunkReader {
	owned := make([]string, len(chunks))
	copy(owned, chunks)
	return &chunkReader{chunks: owned}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n == len(r.chunks[0]) {
		r.chunks = r.chunks[1:]
	} else {
		r.chunks[0] = r.chunks[0][n:]
	}
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

// blockingBody blocks Read until Close, then fails the read. It stands in
// for a live stream that only ends when cancelled.
type blockingBody struct {
	once   sync.Once
	closed chan struct{}
	sent   string
	served bool
	mu     sync.Mutex
}

func newBlockingBody(initial string) *blockingBody {
	return &blockingBody{closed: make(chan struct{}), sent: initial}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	if !b.served && b.sent != "" {
		b.served = true
		n := copy(p, b.sent)
		b.mu.Unlock()
		return n, nil
	}
	b.mu.Unlock()
	<-b.closed
	return 0, errors.New("read on closed body")
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

// --- SendMessage ---

func TestSendMessage_EmptyInputIsNoOp(t *testing.T) {
	store := newFakeStore()
	relay := &fakeRelay{}
	p := New(store, relay, nil)

	p.SendMessage(context.Background(), "   \n\t", "t1", "")

	assert.Empty(t, p.Messages("t1"))
	assert.Empty(t, store.insertCalls())
	assert.Empty(t, relay.calls())
}

func TestSendMessage_OptimisticAppendBeforePersistResolves(t *testing.T) {
	store := newFakeStore()
	store.insertStarted = make(chan struct{}, 2)
	store.insertRelease = make(chan struct{})
	relay := &fakeRelay{chunks: []string{"ok"}}
	p := New(store, relay, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.SendMessage(context.Background(), "Hello", "t1", "")
	}()

	// The store call has started but not resolved; both optimistic messages
	// must already be visible.
	<-store.insertStarted
	messages := p.Messages("t1")
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, models.StatusSending, messages[0].Status)
	assert.True(t, len(messages[0].ID) > 5 && messages[0].ID[:5] == "temp-")
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.Equal(t, "", messages[1].Content)
	assert.Equal(t, models.StatusStreaming, messages[1].Status)

	close(store.insertRelease)
	<-done
}

func TestSendMessage_UserPersistFailure(t *testing.T) {
	store := newFakeStore()
	store.insertErr[models.RoleUser] = errors.New("insert denied")
	relay := &fakeRelay{}
	var notified []string
	p := New(store, relay, func(msg string) { notified = append(notified, msg) })

	p.SendMessage(context.Background(), "Hello", "t1", "")

	messages := p.Messages("t1")
	require.Len(t, messages, 2)
	assert.Equal(t, models.StatusFailed, messages[0].Status)
	// Placeholder untouched, nothing persisted, relay never called.
	assert.Equal(t, models.StatusStreaming, messages[1].Status)
	assert.Empty(t, store.insertCalls())
	assert.Empty(t, relay.calls())
	require.Len(t, notified, 1)
	assert.Contains(t, notified[0], "insert denied")
}

func TestSendMessage_RelayFailure(t *testing.T) {
	store := newFakeStore()
	relay := &fakeRelay{err: errors.New("upstream 500")}
	var notified []string
	p := New(store, relay, func(msg string) { notified = append(notified, msg) })

	p.SendMessage(context.Background(), "Hello", "t1", "")

	messages := p.Messages("t1")
	require.Len(t, messages, 2)
	assert.Equal(t, models.StatusSent, messages[0].Status)
	assert.Equal(t, models.StatusFailed, messages[1].Status)
	assert.Equal(t, "", messages[1].Content)
	require.Len(t, notified, 1)
	assert.Contains(t, notified[0], "upstream 500")

	// Only the user message reached the store.
	calls := store.insertCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.RoleUser, calls[0].role)
}

func TestSendMessage_SuccessReconcilesPlaceholder(t *testing.T) {
	store := newFakeStore()
	relay := &fakeRelay{chunks: []string{"Hi", " there"}}
	p := New(store, relay, nil)

	p.SendMessage(context.Background(), "Hello", "t1", "")

	messages := p.Messages("t1")
	require.Len(t, messages, 2)

	user := messages[0]
	assert.Equal(t, models.StatusSent, user.Status)
	assert.True(t, len(user.ID) > 5 && user.ID[:5] == "temp-", "temporary id is retained for the user message")

	assistant := messages[1]
	assert.Equal(t, "Hi there", assistant.Content)
	assert.Equal(t, models.StatusSent, assistant.Status)
	assert.Equal(t, "db-2", assistant.ID, "placeholder id swapped for the store-assigned one")

	// Exactly one message carries the persisted id.
	count := 0
	for _, m := range messages {
		if m.ID == assistant.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)

	calls := store.insertCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, insertCall{"t1", models.RoleUser, "Hello"}, calls[0])
	assert.Equal(t, insertCall{"t1", models.RoleAssistant, "Hi there"}, calls[1])
}

func TestSendMessage_OutboundHistoryShape(t *testing.T) {
	store := newFakeStore()
	relay := &fakeRelay{chunks: []string{"ok"}}
	p := New(store, relay, nil)

	// Seed prior history.
	p.State().Replace("t1", []models.Message{
		{ID: "db-old-1", Role: models.RoleUser, Content: "earlier question", Status: models.StatusSent},
		{ID: "db-old-2", Role: models.RoleAssistant, Content: "earlier answer", Status: models.StatusSent},
	})

	p.SendMessage(context.Background(), "  follow-up  ", "t1", "be terse")

	calls := relay.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 4)
	assert.Equal(t, models.ChatMessage{Role: models.RoleSystem, Content: "be terse"}, calls[0][0])
	assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "earlier question"}, calls[0][1])
	assert.Equal(t, models.ChatMessage{Role: models.RoleAssistant, Content: "earlier answer"}, calls[0][2])
	assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "follow-up"}, calls[0][3], "input is trimmed and the optimistic pair is excluded")
}

func TestSendMessage_AssistantPersistFailureKeepsText(t *testing.T) {
	store := newFakeStore()
	store.insertErr[models.RoleAssistant] = errors.New("disk full")
	relay := &fakeRelay{chunks: []string{"partial answer"}}
	var notified []string
	p := New(store, relay, func(msg string) { notified = append(notified, msg) })

	p.SendMessage(context.Background(), "Hello", "t1", "")

	messages := p.Messages("t1")
	require.Len(t, messages, 2)
	assistant := messages[1]
	assert.Equal(t, models.StatusFailed, assistant.Status)
	assert.Equal(t, "partial answer", assistant.Content, "accumulated text stays visible")
	assert.True(t, len(assistant.ID) > 10 && assistant.ID[:10] == "assistant-", "temporary id kept on failure")
	require.Len(t, notified, 1)
	assert.Contains(t, notified[0], "disk full")
}

func TestSendMessage_ChunksAppliedInOrder(t *testing.T) {
	store := newFakeStore()
	relay := &fakeRelay{chunks: []string{"a", "b", "c"}}
	p := New(store, relay, nil)

	var observed []string
	unsubscribe := p.State().Subscribe(func(threadID string, messages []models.Message) {
		if len(messages) == 2 && messages[1].Status == models.StatusStreaming && messages[1].Content != "" {
			observed = append(observed, messages[1].Content)
		}
	})
	defer unsubscribe()

	p.SendMessage(context.Background(), "go", "t1", "")

	assert.Equal(t, []string{"a", "ab", "abc"}, observed)
}

func TestCancelStream_KeepsAccumulatedText(t *testing.T) {
	store := newFakeStore()
	body := newBlockingBody("partial")
	relay := &fakeRelay{body: body}
	var notified []string
	p := New(store, relay, func(msg string) { notified = append(notified, msg) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.SendMessage(context.Background(), "Hello", "t1", "")
	}()

	// Wait for the first chunk to land.
	require.Eventually(t, func() bool {
		msgs := p.Messages("t1")
		return len(msgs) == 2 && msgs[1].Content == "partial"
	}, time.Second, 5*time.Millisecond)

	p.CancelStream("t1")
	<-done

	messages := p.Messages("t1")
	require.Len(t, messages, 2)
	assert.Equal(t, "partial", messages[1].Content, "no rollback of accumulated text")
	assert.NotEqual(t, models.StatusFailed, messages[1].Status, "cancellation is not a failure")
	assert.Empty(t, notified, "cancellation errors are swallowed")

	// The assistant text was never persisted.
	for _, c := range store.insertCalls() {
		assert.NotEqual(t, models.RoleAssistant, c.role)
	}
}

func TestCancelStream_NoLiveStreamIsNoOp(t *testing.T) {
	p := New(newFakeStore(), &fakeRelay{}, nil)
	p.CancelStream("t1")
}

// --- LoadMessages ---

func TestLoadMessages_AppliesPersistedSequence(t *testing.T) {
	store := newFakeStore()
	store.listResult["t1"] = []models.Message{
		{ID: "db-1", Role: models.RoleUser, Content: "q"},
		{ID: "db-2", Role: models.RoleAssistant, Content: "a"},
	}
	p := New(store, &fakeRelay{}, nil)

	require.NoError(t, p.LoadMessages(context.Background(), "t1"))

	messages := p.Messages("t1")
	require.Len(t, messages, 2)
	assert.Equal(t, models.StatusSent, messages[0].Status)
	assert.Equal(t, models.StatusSent, messages[1].Status)
}

func TestLoadMessages_StaleLoadIsDropped(t *testing.T) {
	store := newFakeStore()
	store.listResult["t1"] = []models.Message{{ID: "old-1", Role: models.RoleUser, Content: "from t1"}}
	store.listResult["t2"] = []models.Message{{ID: "new-1", Role: models.RoleUser, Content: "from t2"}}
	store.listStarted = map[string]chan struct{}{"t1": make(chan struct{}, 1)}
	store.listRelease = map[string]chan struct{}{"t1": make(chan struct{})}
	p := New(store, &fakeRelay{}, nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- p.LoadMessages(context.Background(), "t1")
	}()
	<-store.listStarted["t1"]

	// Selection moves on while the first load is in flight.
	require.NoError(t, p.LoadMessages(context.Background(), "t2"))

	close(store.listRelease["t1"])
	require.NoError(t, <-firstDone)

	assert.Empty(t, p.Messages("t1"), "stale load result must not be applied")
	require.Len(t, p.Messages("t2"), 1)
	assert.Equal(t, "from t2", p.Messages("t2")[0].Content)
}

func TestSendMessage_SerializesPerThread(t *testing.T) {
	store := newFakeStore()
	relay := &fakeRelay{chunks: []string{"r"}}
	p := New(store, relay, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.SendMessage(context.Background(), fmt.Sprintf("msg %d", i), "t1", "")
		}(i)
	}
	wg.Wait()

	// Four sends, each appending a user turn and an assistant turn, with no
	// interleaving: user/assistant roles must alternate.
	messages := p.Messages("t1")
	require.Len(t, messages, 8)
	for i, m := range messages {
		if i%2 == 0 {
			assert.Equal(t, models.RoleUser, m.Role, "position %d", i)
		} else {
			assert.Equal(t, models.RoleAssistant, m.Role, "position %d", i)
		}
	}
}
