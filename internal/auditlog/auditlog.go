// Package auditlog records fire-and-forget audit entries in the
// key-value store.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/kv"
	"github.com/starford/ansuz/internal/models"
)

// defaultTTL keeps audit entries for a year.
const defaultTTL = 365 * 24 * time.Hour

// Logger writes audit entries under "<type>:<unix-ms>" keys. A failed
// write never fails the operation being audited.
type Logger struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration
}

// Option configures a Logger.
type Option func(*Logger)

// WithNow sets the time source for testing.
func WithNow(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// WithTTL overrides the retention period.
func WithTTL(ttl time.Duration) Option {
	return func(l *Logger) {
		l.ttl = ttl
	}
}

// New creates an audit logger over store.
func New(store kv.Store, opts ...Option) *Logger {
	l := &Logger{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stores an audit entry. Errors are logged and swallowed.
func (l *Logger) Record(ctx context.Context, entryType, message, ip, userAgent string) {
	entry := models.AuditEntry{
		Message:   message,
		IP:        ip,
		UserAgent: userAgent,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("audit entry encode failed", slog.String("type", entryType), slog.String("error", err.Error()))
		return
	}
	key := fmt.Sprintf("%s:%d", entryType, l.now().UnixMilli())
	if err := l.store.Put(ctx, key, raw, l.ttl); err != nil {
		l.logger.Warn("audit entry write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
