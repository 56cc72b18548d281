package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/openai/openai-go/packages/ssestream"
	"github.com/tidwall/gjson"
	"github.com/zulandar/docchat/internal/models"
	"go.uber.org/zap"
)

// MessageStream is the server-push channel for one outgoing user message.
// Next blocks until a message arrives, the stream ends, or it is closed.
type MessageStream interface {
	Next() bool
	Message() models.Message
	Err() error
	Close() error
}

// controlEvents carry no message payload.
var controlEvents = map[string]bool{
	"connected": true,
	"heartbeat": true,
	"ping":      true,
}

type sseStream struct {
	decoder ssestream.Decoder
	cancel  context.CancelFunc
	log     *zap.Logger

	cur models.Message
	err error

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// OpenMessageStream sends userText to a conversation and returns the stream
// of assistant messages produced for it. The stream is not subject to the
// client's request timeout; close it to release the connection.
func (c *Client) OpenMessageStream(ctx context.Context, conversationID, userText string) (MessageStream, error) {
	const op = "open message stream"
	u := c.endpoint("conversation/"+url.PathEscape(conversationID)+"/message",
		url.Values{"user_message": {userText}})

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, &NetworkError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, &NetworkError{Op: op, URL: u, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		if resp.StatusCode == http.StatusNotFound {
			return nil, &NotFoundError{Resource: "conversation", ID: conversationID}
		}
		return nil, &NetworkError{Op: op, URL: u, StatusCode: resp.StatusCode}
	}

	c.log.Debug("backend: message stream opened", zap.String("conversation_id", conversationID))
	return &sseStream{
		decoder: ssestream.NewDecoder(resp),
		cancel:  cancel,
		log:     c.log,
	}, nil
}

func (s *sseStream) Next() bool {
	if s.err != nil || s.isClosed() {
		return false
	}
	for s.decoder.Next() {
		ev := s.decoder.Event()
		if controlEvents[ev.Type] || len(ev.Data) == 0 {
			continue
		}
		if !gjson.ValidBytes(ev.Data) {
			s.err = &DecodeError{Op: "message stream", Err: errors.New("event data is not JSON")}
			return false
		}
		msg, err := decodeMessage(gjson.ParseBytes(ev.Data))
		if err != nil {
			s.err = &DecodeError{Op: "message stream", Err: err}
			return false
		}
		s.cur = msg
		return true
	}
	if err := s.decoder.Err(); err != nil && !s.isClosed() {
		s.err = &NetworkError{Op: "message stream", Err: err}
	}
	return false
}

func (s *sseStream) Message() models.Message { return s.cur }

func (s *sseStream) Err() error { return s.err }

// Close aborts the underlying request. It is safe to call more than once and
// from a goroutine other than the one calling Next.
func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		err = s.decoder.Close()
		s.log.Debug("backend: message stream closed")
	})
	return err
}

func (s *sseStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
