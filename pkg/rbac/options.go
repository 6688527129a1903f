package rbac

import (
	"io"
	"log/slog"
	"time"

	"github.com/phillgates2/panel-sub002/pkg/audit"
)

// Option configures an Engine or a Manager.
type Option func(*options)

type options struct {
	now   func() time.Time
	log   *slog.Logger
	cache EffectiveCache
	audit audit.Logger
}

func defaultOptions() options {
	return options{
		now: time.Now,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithClock sets the time source used when no explicit asOf is given
// and for timestamps written by the Manager.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithCache enables memoization of role effective permissions.
// Engine and Manager must share the same cache so writes invalidate it.
func WithCache(c EffectiveCache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithAuditLogger records administrative changes made through the Manager.
func WithAuditLogger(l audit.Logger) Option {
	return func(o *options) {
		o.audit = l
	}
}
