package entitlement

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Resolver is the slice of the store the listener needs.
type Resolver interface {
	Resolve(ctx context.Context, principalID string) (*Record, error)
}

// SessionListener reacts to session-change notifications from the session
// provider: on every change it re-resolves the current principal's record
// and discards any in-flight resolution from a previous principal.
type SessionListener struct {
	resolver Resolver
	logger   *slog.Logger
	timeout  time.Duration

	gen atomic.Uint64

	mu          sync.RWMutex
	principalID string
	current     *Record
}

func NewSessionListener(resolver Resolver, logger *slog.Logger) *SessionListener {
	return &SessionListener{
		resolver: resolver,
		logger:   logger,
		timeout:  5 * time.Second,
	}
}

// OnSessionChange handles a new current principal. An empty id means
// signed out.
func (l *SessionListener) OnSessionChange(principalID string) {
	generation := l.gen.Add(1)

	if principalID == "" {
		l.store(generation, "", nil)
		l.logger.Info("session cleared")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		rec, err := l.resolver.Resolve(ctx, principalID)
		if err != nil {
			l.logger.Error("failed to resolve entitlements on session change",
				"principal_id", principalID, "error", err)
			return
		}

		if !l.store(generation, principalID, rec) {
			l.logger.Debug("discarded stale entitlement resolution", "principal_id", principalID)
			return
		}

		l.logger.Info("session entitlements refreshed",
			"principal_id", principalID,
			"is_admin", rec.IsAdmin,
			"module_count", len(rec.Modules))
	}()
}

// store publishes the resolution unless a newer session change superseded it.
func (l *SessionListener) store(generation uint64, principalID string, rec *Record) bool {
	if l.gen.Load() != generation {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen.Load() != generation {
		return false
	}
	l.principalID = principalID
	l.current = rec
	return true
}

// Current returns the record of the active session, or nil when signed out.
func (l *SessionListener) Current() (string, *Record) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.principalID, l.current.Clone()
}
