// Package sysutil holds small process-level helpers: log level parsing and
// the per-key mutex that serializes work per user.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// ParseLevel maps debug|info|warn|error|fatal|panic (case-insensitive,
// "warning" accepted) to a zerolog level. Unknown or empty values are info.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	}
	return zerolog.InfoLevel
}

// SetLogLevel sets the global zerolog level and returns what was applied.
func SetLogLevel(lvl string) zerolog.Level {
	l := ParseLevel(lvl)
	zerolog.SetGlobalLevel(l)
	return l
}
