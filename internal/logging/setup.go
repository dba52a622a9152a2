// Package logging configures the broker's structured logging and carries
// the correlation helpers the PCoIP handshake needs: clients send a
// CLIENT-LOG-ID header for exactly this purpose, and credential
// attributes must never reach the output.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// level backs every handler Init builds, so the level can be changed at
// runtime via SetLevel.
var level slog.LevelVar

// Init configures the default slog logger. levelStr is one of debug,
// info, warn, error (default info); format is json (default) or text.
// Output goes to stderr; InitWriter exists for tests.
func Init(levelStr, format string) {
	InitWriter(levelStr, format, os.Stderr)
}

// InitWriter is Init with an explicit output writer.
func InitWriter(levelStr, format string, w io.Writer) {
	level.Set(parseLevel(levelStr))

	opts := &slog.HandlerOptions{Level: &level, ReplaceAttr: redactCredentials}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Third-party code still writing through the stdlib log package lands
	// on the same handler instead of bypassing it.
	log.SetOutput(stdlogBridge{logger: logger})
	log.SetFlags(0)
}

// SetLevel changes the log level at runtime.
func SetLevel(levelStr string) {
	level.Set(parseLevel(levelStr))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactCredentials blanks any attribute that could carry a PCoIP
// password. The authenticate and launch-session paths both handle raw
// credentials; a stray attribute must not leak them.
func redactCredentials(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case "password", "credentials":
		a.Value = slog.StringValue("<redacted>")
	}
	return a
}

// WithClientLogID tags a logger with the CLIENT-LOG-ID value a PCoIP
// client sent, so one client's handshake can be followed across its
// requests. A missing header leaves the logger untouched.
func WithClientLogID(logger *slog.Logger, id string) *slog.Logger {
	if id == "" {
		return logger
	}
	return logger.With("client_log_id", id)
}

// WithSessionKey tags a logger with a shortened session key. Only a
// prefix is logged; the full key is effectively a bearer token for the
// session store.
func WithSessionKey(logger *slog.Logger, key string) *slog.Logger {
	if key == "" {
		return logger
	}
	if len(key) > 8 {
		key = key[:8]
	}
	return logger.With("session", key)
}

// stdlogBridge adapts the global log package onto the slog handler.
type stdlogBridge struct {
	logger *slog.Logger
}

func (b stdlogBridge) Write(p []byte) (int, error) {
	b.logger.Info(strings.TrimRight(string(p), "\n"), "logger", "stdlog")
	return len(p), nil
}
