package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/models"
)

// fakeStream is a MessageStream fed by the test through push.
type fakeStream struct {
	convID string
	text   string

	events    chan models.Message
	closed    chan struct{}
	closeOnce sync.Once
	nextCalls atomic.Int32
	err       error
	cur       models.Message
}

func newFakeStream(convID, text string) *fakeStream {
	return &fakeStream{
		convID: convID,
		text:   text,
		events: make(chan models.Message, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeStream) push(m models.Message) { f.events <- m }

// end finishes the stream as if the server hung up.
func (f *fakeStream) end(err error) {
	f.err = err
	close(f.events)
}

func (f *fakeStream) Next() bool {
	f.nextCalls.Add(1)
	select {
	case <-f.closed:
		return false
	default:
	}
	select {
	case <-f.closed:
		return false
	case m, ok := <-f.events:
		if !ok {
			return false
		}
		f.cur = m
		return true
	}
}

func (f *fakeStream) Message() models.Message { return f.cur }
func (f *fakeStream) Err() error              { return f.err }

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeBackend struct {
	mu            sync.Mutex
	created       [][]string
	createErr     error
	conversations map[string]*backend.Conversation
	fetchErr      error
	fetchGate     chan struct{} // when set, FetchConversation waits on it
	openErr       error
	opened        chan *fakeStream
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		conversations: make(map[string]*backend.Conversation),
		opened:        make(chan *fakeStream, 8),
	}
}

func (b *fakeBackend) CreateConversation(ctx context.Context, ids []string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return "", b.createErr
	}
	b.created = append(b.created, ids)
	return fmt.Sprintf("conv-%d", len(b.created)), nil
}

func (b *fakeBackend) createCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created)
}

func (b *fakeBackend) FetchConversation(ctx context.Context, id string) (*backend.Conversation, error) {
	if b.fetchGate != nil {
		select {
		case <-b.fetchGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	conv, ok := b.conversations[id]
	if !ok {
		return nil, &backend.NotFoundError{Resource: "conversation", ID: id}
	}
	return conv, nil
}

func (b *fakeBackend) OpenMessageStream(ctx context.Context, convID, text string) (backend.MessageStream, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := newFakeStream(convID, text)
	b.opened <- s
	return s, nil
}

func (b *fakeBackend) nextStream(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-b.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no message stream opened")
		return nil
	}
}

func (b *fakeBackend) noStream(t *testing.T) {
	t.Helper()
	select {
	case s := <-b.opened:
		t.Fatalf("unexpected stream opened for %q", s.text)
	default:
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitIdle(t *testing.T, s *Session) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("session did not return to idle")
	}
	return err
}

func assistant(id, content string, status models.Status) models.Message {
	return models.Message{ID: id, Content: content, Role: models.RoleAssistant, Status: status}
}
