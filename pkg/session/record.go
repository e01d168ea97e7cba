package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Agent is the session's view of its conversational agent. agent.Agent
// satisfies it; tests substitute fakes.
type Agent interface {
	Run(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Record is one authenticated user's live session: the agent binding, the
// activity clock the reaper reads, and the per-session execution lock.
type Record struct {
	ID        string
	Username  string
	Role      string
	Model     string
	Workspace string
	CreatedAt time.Time

	agent Agent

	// lastActivity is read by ListActive and the reaper while chat turns
	// update it; atomic so snapshots never see torn values.
	lastActivity atomic.Int64

	// execMu serializes this session's chat turns. The reaper only ever
	// TryLocks it, so eviction never waits behind an in-flight turn.
	execMu sync.Mutex

	releaseOnce sync.Once
}

// Touch refreshes the activity clock.
func (r *Record) Touch() {
	r.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last completed turn (or login).
func (r *Record) LastActivity() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

// IdleFor returns how long the session has been idle.
func (r *Record) IdleFor(now time.Time) time.Duration {
	return now.Sub(r.LastActivity())
}

// release frees the session's resources. Exactly-once regardless of how
// many replace/remove/evict paths race to it, and best-effort: a failure is
// logged, never propagated.
func (r *Record) release() {
	r.releaseOnce.Do(func() {
		if r.agent == nil {
			return
		}
		if err := r.agent.Close(); err != nil {
			log.Warn().
				Str("username", r.Username).
				Str("session_id", r.ID).
				Err(err).
				Msg("Session resource release failed")
		}
	})
}

// ValidateUsername rejects usernames that cannot safely name a session or a
// workspace directory.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if strings.Contains(username, "..") {
		return fmt.Errorf("username cannot contain '..'")
	}
	if strings.ContainsAny(username, "/\\") {
		return fmt.Errorf("username cannot contain path separators")
	}
	if strings.Contains(username, "\x00") {
		return fmt.Errorf("username cannot contain null bytes")
	}
	return nil
}
