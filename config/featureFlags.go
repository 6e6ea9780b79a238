package config

import (
	"os"
	"strings"
)

// SyncCreatePlaceholders controls whether the reference resolver may create
// placeholder rows for entities that have not been synced yet. Disabling it
// makes unresolved references a per-record error instead.
//
// Set via env:
// - SYNC_CREATE_PLACEHOLDERS=false
func SyncCreatePlaceholders() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_CREATE_PLACEHOLDERS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// EnvBoolDefault reads a boolean env var with a default.
func EnvBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
