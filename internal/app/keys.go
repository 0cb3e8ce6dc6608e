package app

import "github.com/nhle/taskflow/internal/keys"

// KeyMap is re-exported from the keys package for callers that build the
// root model.
type KeyMap = keys.KeyMap

// DefaultKeyMap delegates to keys.DefaultKeyMap.
func DefaultKeyMap() *KeyMap {
	return keys.DefaultKeyMap()
}
