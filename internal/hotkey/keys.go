// Package hotkey binds global keyboard shortcuts to capture workflows and
// reads the clipboard when one fires. It is a thin shim over the OS
// integration; everything interesting happens in the capture pipeline.
package hotkey

import (
	"fmt"
	"strings"

	"golang.design/x/hotkey"
)

var modifiers = map[string]hotkey.Modifier{
	"ctrl":  hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   modAlt,
	"super": modSuper,
	"cmd":   modSuper,
	"win":   modSuper,
}

var keys = map[string]hotkey.Key{
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
}

// parseBinding turns a "ctrl+alt+a" style config value into the modifier
// set and key the OS registration wants. The last part must be the key,
// everything before it a modifier.
func parseBinding(spec string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(spec)), "+")
	if len(parts) < 2 {
		return nil, 0, fmt.Errorf("hotkey %q needs at least one modifier", spec)
	}

	var mods []hotkey.Modifier
	for _, part := range parts[:len(parts)-1] {
		mod, ok := modifiers[strings.TrimSpace(part)]
		if !ok {
			return nil, 0, fmt.Errorf("unknown modifier %q in hotkey %q", part, spec)
		}
		mods = append(mods, mod)
	}

	keyName := strings.TrimSpace(parts[len(parts)-1])
	key, ok := keys[keyName]
	if !ok {
		return nil, 0, fmt.Errorf("unknown key %q in hotkey %q", keyName, spec)
	}

	return mods, key, nil
}
