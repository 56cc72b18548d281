// Package session owns one chat conversation: its identity, its message log
// and the server-push stream opened for each outgoing user message.
//
// A Session starts in NoConversation. The conversation id is read from the
// state store on Open, or created on the first Submit, and then cached so a
// later run resumes the same conversation. At most one message stream is open
// at a time; Submit while a response is streaming fails with
// ErrAwaitingResponse instead of queueing.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/kvstore"
	"github.com/zulandar/docchat/internal/logger"
	"github.com/zulandar/docchat/internal/models"
	"github.com/zulandar/docchat/internal/persist"
	"go.uber.org/zap"
)

var (
	// ErrAwaitingResponse is returned by Submit while a response is streaming.
	ErrAwaitingResponse = errors.New("session: awaiting response to previous message")

	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("session: closed")

	// ErrStreamTimeout reports a stream that stayed silent past the idle timeout.
	ErrStreamTimeout = errors.New("session: no response within idle timeout")

	// ErrStreamEnded reports a stream that ended before a final message.
	ErrStreamEnded = errors.New("session: stream ended before a final message")
)

// State is the conversation-level state.
type State int

const (
	NoConversation State = iota
	ConversationActive
)

func (s State) String() string {
	if s == ConversationActive {
		return "active"
	}
	return "none"
}

// SubState tracks the exchange for the latest user message.
type SubState int

const (
	Idle SubState = iota
	AwaitingResponse
)

func (s SubState) String() string {
	if s == AwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

// Backend is the subset of the backend client a Session uses.
type Backend interface {
	CreateConversation(ctx context.Context, documentIDs []string) (string, error)
	FetchConversation(ctx context.Context, id string) (*backend.Conversation, error)
	OpenMessageStream(ctx context.Context, conversationID, userText string) (backend.MessageStream, error)
}

// Opts holds parameters for creating a Session.
type Opts struct {
	Backend           Backend
	Store             kvstore.Store // nil keeps the conversation id in memory only
	Logger            *zap.Logger
	DocumentIDs       []string      // documents attached to a newly created conversation
	StreamIdleTimeout time.Duration // zero disables the idle timeout
	ConversationKey   string        // defaults to config.DefaultConversationKey
}

// Session is safe for concurrent use.
type Session struct {
	backend Backend
	log     *zap.Logger
	docIDs  []string
	idle    time.Duration
	convID  *persist.Value[string]
	updates chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	opened    bool
	closed    bool
	state     State
	sub       SubState
	id        string
	messages  []models.Message
	documents []models.Document
	stream    backend.MessageStream
	inflight  string        // id of the assistant message being streamed
	idleCh    chan struct{} // closed when sub returns to Idle
	lastErr   error
}

// New creates a Session. Nothing is read or fetched until Open.
func New(opts Opts) (*Session, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("session: backend is required")
	}
	key := opts.ConversationKey
	if key == "" {
		key = config.DefaultConversationKey
	}
	log := logger.OrNop(opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		backend:    opts.Backend,
		log:        log,
		docIDs:     slices.Clone(opts.DocumentIDs),
		idle:       opts.StreamIdleTimeout,
		convID:     persist.New(opts.Store, key, "", log),
		updates:    make(chan struct{}, 1),
		baseCtx:    ctx,
		baseCancel: cancel,
	}, nil
}

// Open resumes the cached conversation, if any. The message log is hydrated
// in the background; an unknown conversation leaves the log empty. Only the
// first call has an effect.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = true
	id := s.convID.Get()
	if id == "" {
		s.mu.Unlock()
		return nil
	}
	s.state = ConversationActive
	s.id = id
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info("session: resuming conversation", zap.String("conversation_id", id))
	s.notify()
	go s.hydrate(id)
	return nil
}

func (s *Session) hydrate(id string) {
	defer s.wg.Done()
	conv, err := s.backend.FetchConversation(s.baseCtx, id)
	if err != nil {
		var nf *backend.NotFoundError
		if errors.As(err, &nf) {
			s.log.Info("session: cached conversation not found, starting empty", zap.String("conversation_id", id))
		} else if s.baseCtx.Err() == nil {
			s.log.Warn("session: could not load conversation", zap.String("conversation_id", id), zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	if s.closed || s.id != id {
		s.mu.Unlock()
		return
	}
	s.messages = mergeHistory(conv.Messages, s.messages)
	s.documents = conv.Documents
	s.mu.Unlock()

	s.log.Debug("session: conversation loaded",
		zap.String("conversation_id", id),
		zap.Int("messages", len(conv.Messages)),
		zap.Int("documents", len(conv.Documents)))
	s.notify()
}

// Submit sends text as a user message. An empty text is ignored. The first
// Submit without a cached conversation creates one; if that fails the
// Session stays in NoConversation and the error is returned. Submit returns
// once the response stream is open; use Wait to block until it finishes.
func (s *Session) Submit(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.sub == AwaitingResponse {
		s.mu.Unlock()
		return ErrAwaitingResponse
	}
	s.sub = AwaitingResponse
	s.idleCh = make(chan struct{})
	s.lastErr = nil
	id := s.id
	s.mu.Unlock()
	s.notify()

	if id == "" {
		created, err := s.backend.CreateConversation(ctx, s.docIDs)
		if err != nil {
			err = fmt.Errorf("session: create conversation: %w", err)
			s.finish(err)
			return err
		}
		id = created
		s.convID.Set(id)
		s.mu.Lock()
		s.state = ConversationActive
		s.id = id
		s.mu.Unlock()
		s.log.Info("session: created conversation", zap.String("conversation_id", id), zap.Int("documents", len(s.docIDs)))
	}

	s.mu.Lock()
	s.messages = append(s.messages, models.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		Content:        text,
		Role:           models.RoleUser,
		Status:         models.StatusSuccess,
		CreatedAt:      time.Now().UTC(),
	})
	s.mu.Unlock()
	s.notify()

	stream, err := s.backend.OpenMessageStream(s.baseCtx, id, text)
	if err != nil {
		err = fmt.Errorf("session: open message stream: %w", err)
		s.finish(err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stream.Close()
		s.finish(ErrClosed)
		return ErrClosed
	}
	s.stream = stream
	s.inflight = ""
	s.wg.Add(1)
	s.mu.Unlock()

	go s.pump(stream)
	return nil
}

// pump reads stream until a message with a final status arrives, the idle
// timer fires, or the stream ends.
func (s *Session) pump(stream backend.MessageStream) {
	defer s.wg.Done()
	defer stream.Close()

	var (
		timer    *time.Timer
		timedOut atomic.Bool
	)
	if s.idle > 0 {
		timer = time.AfterFunc(s.idle, func() {
			timedOut.Store(true)
			stream.Close()
		})
		defer timer.Stop()
	}
	s.pumpLoop(stream, timer, &timedOut)
}

func (s *Session) pumpLoop(stream backend.MessageStream, timer *time.Timer, timedOut *atomic.Bool) {
	for stream.Next() {
		if timer != nil {
			timer.Reset(s.idle)
		}
		if s.receive(stream.Message()) {
			stream.Close()
			s.finish(nil)
			return
		}
	}

	var err error
	switch {
	case timedOut.Load():
		err = ErrStreamTimeout
	case s.isClosed():
		s.finish(ErrClosed)
		return
	case stream.Err() != nil:
		err = fmt.Errorf("session: message stream: %w", stream.Err())
	default:
		err = ErrStreamEnded
	}
	s.log.Warn("session: message stream stopped without a final message", zap.Error(err))
	s.failInflight()
	s.finish(err)
}

// receive merges msg into the log and reports whether it is final.
func (s *Session) receive(msg models.Message) bool {
	s.mu.Lock()
	if msg.ConversationID == "" {
		msg.ConversationID = s.id
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var applied bool
	s.messages, applied = mergeMessage(s.messages, msg)
	if applied && msg.Role == models.RoleAssistant {
		s.inflight = msg.ID
	}
	s.mu.Unlock()

	if !applied {
		s.log.Debug("session: ignored out-of-order message update",
			zap.String("message_id", msg.ID), zap.String("status", string(msg.Status)))
		return false
	}
	s.notify()
	return msg.Status.Terminal()
}

// mergeMessage replaces the entry with msg's id or appends msg. An update
// that would move a message's status backwards is dropped.
func mergeMessage(log []models.Message, msg models.Message) ([]models.Message, bool) {
	i := indexOf(log, msg.ID)
	if i < 0 {
		return append(log, msg), true
	}
	if !log[i].Status.CanAdvanceTo(msg.Status) {
		return log, false
	}
	if !log[i].CreatedAt.IsZero() {
		msg.CreatedAt = log[i].CreatedAt
	}
	log[i] = msg
	return log, true
}

// mergeHistory combines a server snapshot with messages received since Open.
// Server-only entries keep their order and come first. Local entries follow
// in append order, each merged onto its server copy so status never moves
// backwards.
func mergeHistory(server, local []models.Message) []models.Message {
	merged := make([]models.Message, 0, len(server)+len(local))
	for _, m := range server {
		if indexOf(local, m.ID) < 0 {
			merged = append(merged, m)
		}
	}
	for _, m := range local {
		if i := indexOf(server, m.ID); i >= 0 {
			m = mergeOnto(server[i], m)
		}
		merged = append(merged, m)
	}
	return merged
}

// mergeOnto returns the copy of a message that is furthest along.
func mergeOnto(server, local models.Message) models.Message {
	log, _ := mergeMessage([]models.Message{server}, local)
	return log[0]
}

func indexOf(log []models.Message, id string) int {
	for i, m := range log {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// failInflight marks the assistant message being streamed as failed.
func (s *Session) failInflight() {
	s.mu.Lock()
	if s.inflight == "" {
		s.mu.Unlock()
		return
	}
	if i := indexOf(s.messages, s.inflight); i >= 0 && !s.messages[i].Status.Terminal() {
		s.messages[i].Status = models.StatusError
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	s.sub = Idle
	s.stream = nil
	s.inflight = ""
	s.lastErr = err
	if s.idleCh != nil {
		close(s.idleCh)
		s.idleCh = nil
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Wait blocks until no response is streaming and returns the error that
// ended the most recent exchange, or nil if it ended with a final message.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	ch := s.idleCh
	s.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Messages returns a copy of the message log in append order.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Documents returns the documents attached to the resumed conversation.
func (s *Session) Documents() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.documents)
}

// ConversationID returns the active conversation id, or "".
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the conversation-level state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubState returns whether a response is streaming.
func (s *Session) SubState() SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

// Updates signals that messages or state changed. Signals are coalesced and
// the channel is never closed; select on Done to stop reading.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// Done is closed when the Session is closed.
func (s *Session) Done() <-chan struct{} { return s.baseCtx.Done() }

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Reset forgets the cached conversation so the next Submit starts a new one.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.sub == AwaitingResponse {
		s.mu.Unlock()
		return ErrAwaitingResponse
	}
	old := s.id
	s.state = NoConversation
	s.id = ""
	s.messages = nil
	s.documents = nil
	s.lastErr = nil
	s.mu.Unlock()

	s.convID.Clear()
	s.log.Info("session: conversation reset", zap.String("conversation_id", old))
	s.notify()
	return nil
}

// Close closes any open stream and waits for background work to stop.
// Calling Close more than once is safe.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	s.mu.Unlock()

	s.baseCancel()
	if stream != nil {
		stream.Close()
	}
	s.wg.Wait()
	return nil
}
