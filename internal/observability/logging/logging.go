// Package logging configures the process-wide structured logger used by
// the casepilot binaries (cmd/api, cmd/caseworker).
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures slog to emit structured JSON tagged with service/env and
// returns the logger. Output goes to stdout; when logFile is non-empty it
// goes to that file instead, rotated on disk via lumberjack so long-running
// worker processes don't grow an unbounded log file.
func Setup(service, env, logFile string) *slog.Logger {
	var out *os.File = os.Stdout
	writers := []slog.Handler{}
	_ = writers

	opts := &slog.HandlerOptions{
		AddSource: false,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			default:
				return redactAttr(attr)
			}
		},
	}

	var handler slog.Handler
	if strings.TrimSpace(logFile) != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		handler = slog.NewJSONHandler(rotator, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	base := slog.New(handler).With(attrsToArgs(attrs)...)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func attrsToArgs(attrs []slog.Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return args
}

// redactAttr masks known-sensitive borrower identifiers (PAN, Aadhaar,
// GSTIN, bank account numbers) before a log record leaves the process. This
// mirrors the teacher's allowlist-based masking but inverts it: casepilot
// denylists a small, named set of PII-bearing keys rather than allowlisting
// everything else, because the domain has far fewer safe-by-default fields.
func redactAttr(attr slog.Attr) slog.Attr {
	if IsSensitiveKey(attr.Key) && attr.Value.Kind() == slog.KindString && attr.Value.String() != "" {
		return slog.String(attr.Key, RedactedValue)
	}
	return attr
}
