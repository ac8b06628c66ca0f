package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"
)

// auditValueKeys are tool arguments whose values are safe to record.
// Every other argument is recorded as "set" so that file paths and run
// ids never reach the audit log.
var auditValueKeys = map[string]bool{"limit": true}

// AuditLogger appends one JSON line per tool call to dir/audit.jsonl.
// A nil AuditLogger records nothing.
type AuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewAuditLogger opens dir/audit.jsonl with owner-only permissions. It
// returns nil, after a warning on stderr, when the file cannot be opened.
func NewAuditLogger(dir string) *AuditLogger {
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}
	path := filepath.Join(dir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}
	return &AuditLogger{file: f, logger: slog.New(slog.NewJSONHandler(f, nil))}
}

// Record logs a finished call to tool.
func (a *AuditLogger) Record(tool string, start time.Time, err error, args map[string]any) {
	if a == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("tool", tool),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if params := auditParams(args); len(params) > 0 {
		attrs = append(attrs, slog.Any("params", params))
	}
	level, msg := slog.LevelInfo, "success"
	if err != nil {
		level, msg = slog.LevelWarn, "error"
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Close closes the log file. Safe on a nil receiver and more than once.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// auditParams keeps the values of auditValueKeys and reduces every other
// non-empty argument to "set". Empty arguments are left out.
func auditParams(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for key, val := range args {
		if val == nil || reflect.ValueOf(val).IsZero() {
			continue
		}
		if auditValueKeys[key] {
			out[key] = fmt.Sprint(val)
		} else {
			out[key] = "set"
		}
	}
	return out
}
