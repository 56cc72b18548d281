package session

import (
	"errors"

	"github.com/zulandar/docchat/internal/keys"
	"go.uber.org/zap"
)

// SubmitKeys binds a plain Enter on src to Submit with the text returned by
// input. Enter is ignored while a response is streaming. The binding lasts
// until the returned function is called.
func (s *Session) SubmitKeys(src keys.Source, input func() string) (detach func()) {
	return src.Subscribe(func(ev keys.Event) {
		if ev.Key != keys.Enter || ev.Shift || ev.Meta {
			return
		}
		if s.SubState() == AwaitingResponse {
			return
		}
		if err := s.Submit(s.baseCtx, input()); err != nil && !errors.Is(err, ErrAwaitingResponse) {
			s.log.Error("session: submit from keyboard failed", zap.Error(err))
		}
	})
}
