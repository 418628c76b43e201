package hotkey

import (
	"fmt"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"
	"golang.design/x/hotkey"
)

// ReadClipboard returns the current clipboard text. Exposed so main can hand
// it to the pipeline without the pipeline importing OS integration.
func ReadClipboard() (string, error) {
	return clipboard.ReadAll()
}

// Listener owns the registered global hotkeys.
type Listener struct {
	logger  *zap.Logger
	hotkeys []*hotkey.Hotkey
}

// NewListener creates an empty listener.
func NewListener(logger *zap.Logger) *Listener {
	return &Listener{logger: logger}
}

// Bind registers a global hotkey and invokes fn on every keydown. The
// handler runs on the binding's own goroutine; overlapping triggers are the
// pipeline's problem, not ours.
func (l *Listener) Bind(spec string, fn func()) error {
	mods, key, err := parseBinding(spec)
	if err != nil {
		return err
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %q: %w", spec, err)
	}
	l.hotkeys = append(l.hotkeys, hk)
	l.logger.Info("registered hotkey", zap.String("binding", spec))

	go func() {
		for range hk.Keydown() {
			fn()
		}
	}()

	return nil
}

// Close unregisters all hotkeys.
func (l *Listener) Close() {
	for _, hk := range l.hotkeys {
		if err := hk.Unregister(); err != nil {
			l.logger.Warn("failed to unregister hotkey", zap.Error(err))
		}
	}
	l.hotkeys = nil
}
