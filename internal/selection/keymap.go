package selection

import (
	"errors"

	"github.com/zulandar/docchat/internal/keys"
	"go.uber.org/zap"
)

// Keymap binds selection shortcuts: Enter with Shift or Meta adds the
// current facets to the selection, Meta+K asks the owner to focus the
// company picker.
type Keymap struct {
	sel   *Selector
	focus chan struct{}
}

// NewKeymap creates a Keymap for sel.
func NewKeymap(sel *Selector) *Keymap {
	return &Keymap{sel: sel, focus: make(chan struct{}, 1)}
}

// FocusCompany delivers focus requests. Requests that arrive while one is
// still pending are coalesced.
func (k *Keymap) FocusCompany() <-chan struct{} { return k.focus }

// Attach subscribes the bindings to src. The returned function detaches them.
func (k *Keymap) Attach(src keys.Source) (detach func()) {
	return src.Subscribe(k.handle)
}

func (k *Keymap) handle(ev keys.Event) {
	switch {
	case ev.Key == keys.Enter && (ev.Shift || ev.Meta):
		if _, err := k.sel.AddSelectedDocument(); err != nil && !errors.Is(err, ErrIncompleteSelection) {
			k.sel.log.Info("selection: add from keyboard rejected", zap.Error(err))
		}
	case ev.Key == keys.K && ev.Meta:
		select {
		case k.focus <- struct{}{}:
		default:
		}
	}
}
