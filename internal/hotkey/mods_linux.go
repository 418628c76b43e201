//go:build linux

package hotkey

import "golang.design/x/hotkey"

const (
	modAlt   = hotkey.Mod1
	modSuper = hotkey.Mod4
)
