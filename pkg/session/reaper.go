package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reaper periodically evicts sessions that have been idle past the timeout.
// It never interrupts an in-flight turn: a session whose execution lock is
// held is skipped and reconsidered on the next sweep.
type Reaper struct {
	manager     *Manager
	idleTimeout time.Duration
	interval    time.Duration
	logger      zerolog.Logger
	cron        *cron.Cron
}

// NewReaper creates a reaper for the manager's store. Start must be called
// to begin sweeping.
func NewReaper(manager *Manager, idleTimeout, interval time.Duration, logger zerolog.Logger) (*Reaper, error) {
	if idleTimeout <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive, got %s", idleTimeout)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	return &Reaper{
		manager:     manager,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      logger,
	}, nil
}

// Start schedules the periodic sweep.
func (r *Reaper) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		r.Sweep(time.Now())
	}); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	c.Start()
	r.cron = c

	r.logger.Info().
		Dur("idle_timeout", r.idleTimeout).
		Dur("interval", r.interval).
		Msg("Session reaper started")
	return nil
}

// Stop halts sweeping. In-progress sweeps are allowed to finish.
func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
		r.logger.Info().Msg("Session reaper stopped")
	}
}

// Sweep evicts every session idle past the timeout at the given instant and
// returns the number evicted. One session's failure never aborts the sweep.
func (r *Reaper) Sweep(now time.Time) int {
	store := r.manager.Store()

	store.mu.RLock()
	candidates := make([]*Record, 0, len(store.records))
	for _, rec := range store.records {
		if rec.IdleFor(now) > r.idleTimeout {
			candidates = append(candidates, rec)
		}
	}
	store.mu.RUnlock()

	evicted := 0
	for _, rec := range candidates {
		if r.evict(rec, now) {
			evicted++
		}
	}

	if evicted > 0 {
		r.logger.Info().Int("evicted", evicted).Msg("Idle sessions evicted")
	}
	return evicted
}

// evict tears down one idle candidate. It TryLocks the execution lock so a
// turn that started after the snapshot is never interrupted, re-checks the
// idle age under the lock, and removes the record only if the store still
// maps the username to this exact record.
func (r *Reaper) evict(rec *Record, now time.Time) bool {
	if !rec.execMu.TryLock() {
		r.logger.Debug().
			Str("username", rec.Username).
			Msg("Eviction skipped, session busy")
		return false
	}
	defer rec.execMu.Unlock()

	// A turn may have completed between the snapshot and the lock.
	if rec.IdleFor(now) <= r.idleTimeout {
		return false
	}

	if !r.manager.Store().CompareAndRemove(rec.Username, rec) {
		return false
	}

	r.manager.notifyEvicted(rec.Username)
	r.logger.Info().
		Str("username", rec.Username).
		Str("session_id", rec.ID).
		Dur("idle", rec.IdleFor(now)).
		Msg("Idle session evicted")
	return true
}
