package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prasetya/wisma/internal/metrics"
	"github.com/prasetya/wisma/internal/requestid"
	"github.com/prasetya/wisma/pkg/agent"
	"github.com/prasetya/wisma/pkg/tools"
	"github.com/rs/zerolog"
)

// EventType classifies session lifecycle events.
type EventType string

const (
	EventLogin   EventType = "login"
	EventLogout  EventType = "logout"
	EventEvicted EventType = "evicted"
)

// Event is a session lifecycle notification, delivered to the configured
// observer (the gateway broadcasts them to watching clients).
type Event struct {
	Type     EventType `json:"type"`
	Username string    `json:"username"`
	Time     time.Time `json:"time"`
}

// CredentialVerifier checks a login against the credential store and yields
// the user's role. Any non-nil error is terminal for the login attempt.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (tools.Role, error)
}

// CapabilityComposer assembles the tool capability set for a role.
type CapabilityComposer interface {
	Compose(role tools.Role) (tools.CapabilitySet, error)
}

// AgentBuilder constructs the agent for a new session. The default builder
// uses pkg/agent; tests substitute fakes.
type AgentBuilder func(ctx context.Context, p LoginParams, role tools.Role, caps tools.CapabilitySet) (Agent, error)

// LoginParams carries one login request.
type LoginParams struct {
	Username     string
	Password     string
	Model        string
	APIKey       string
	BaseURL      string
	SystemPrompt string
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Verifier      CredentialVerifier
	Composer      CapabilityComposer
	BuildAgent    AgentBuilder // optional
	WorkspaceRoot string
	MaxHistory    int
	MaxToolTurns  int
	TurnTimeout   time.Duration // bound on one chat turn, 0 means none
	Logger        zerolog.Logger
	OnEvent       func(Event) // optional
}

// Manager is the core session manager: it owns login, chat, logout, and the
// active-users view over the session store.
type Manager struct {
	store         *Store
	verifier      CredentialVerifier
	composer      CapabilityComposer
	buildAgent    AgentBuilder
	workspaceRoot string
	maxHistory    int
	maxToolTurns  int
	turnTimeout   time.Duration
	logger        zerolog.Logger
	onEvent       func(Event)
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	metrics.EnsureRegistered()

	if cfg.Verifier == nil {
		return nil, fmt.Errorf("credential verifier is required")
	}
	if cfg.Composer == nil {
		return nil, fmt.Errorf("capability composer is required")
	}

	m := &Manager{
		store:         NewStore(cfg.Logger),
		verifier:      cfg.Verifier,
		composer:      cfg.Composer,
		buildAgent:    cfg.BuildAgent,
		workspaceRoot: cfg.WorkspaceRoot,
		maxHistory:    cfg.MaxHistory,
		maxToolTurns:  cfg.MaxToolTurns,
		turnTimeout:   cfg.TurnTimeout,
		logger:        cfg.Logger,
		onEvent:       cfg.OnEvent,
	}
	if m.buildAgent == nil {
		m.buildAgent = m.defaultAgentBuilder
	}
	return m, nil
}

// Store exposes the session store; the reaper runs against it.
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) defaultAgentBuilder(_ context.Context, p LoginParams, _ tools.Role, caps tools.CapabilitySet) (Agent, error) {
	return agent.New(agent.Params{
		Username:     p.Username,
		Model:        p.Model,
		APIKey:       p.APIKey,
		BaseURL:      p.BaseURL,
		SystemPrompt: p.SystemPrompt,
		MaxHistory:   m.maxHistory,
		MaxToolTurns: m.maxToolTurns,
		Logger:       m.logger,
	}, caps)
}

// Login verifies credentials, composes the role's capability set, builds the
// agent, and installs the session record. A login for an already-logged-in
// user atomically replaces the prior session.
func (m *Manager) Login(ctx context.Context, p LoginParams) error {
	if err := ValidateUsername(p.Username); err != nil {
		return err
	}
	if p.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if p.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if p.SystemPrompt == "" {
		return fmt.Errorf("system prompt is required")
	}

	role, err := m.verifier.Verify(ctx, p.Username, p.Password)
	if err != nil {
		metrics.RecordLogin(false)
		lg := requestid.Logger(ctx, m.logger)
		lg.Warn().
			Str("username", p.Username).
			Err(err).
			Msg("Login rejected")
		return fmt.Errorf("%w", ErrUnauthenticated)
	}

	caps, err := m.composer.Compose(role)
	if err != nil {
		metrics.RecordLogin(false)
		return err
	}

	workspace, err := m.ensureWorkspace(p.Username)
	if err != nil {
		metrics.RecordLogin(false)
		return err
	}

	ag, err := m.buildAgent(ctx, p, role, caps)
	if err != nil {
		metrics.RecordLogin(false)
		return err
	}

	rec := &Record{
		ID:        uuid.NewString(),
		Username:  p.Username,
		Role:      string(role),
		Model:     p.Model,
		Workspace: workspace,
		CreatedAt: time.Now(),
		agent:     ag,
	}
	rec.Touch()
	m.store.Put(rec)

	metrics.RecordLogin(true)
	metrics.SetActiveSessions(m.store.Len())
	m.notify(Event{Type: EventLogin, Username: p.Username, Time: time.Now()})

	m.logger.Info().
		Str("username", p.Username).
		Str("session_id", rec.ID).
		Str("role", rec.Role).
		Str("model", p.Model).
		Int("capabilities", caps.Len()).
		Msg("Session created")
	return nil
}

// Chat runs one chat turn under the session's execution lock and refreshes
// the activity clock on success. A failed turn leaves the session alive.
func (m *Manager) Chat(ctx context.Context, username, message string) (string, error) {
	start := time.Now()
	var reply string

	if m.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.turnTimeout)
		defer cancel()
	}

	err := m.store.WithLock(username, func(rec *Record) error {
		out, runErr := rec.agent.Run(ctx, message)
		if runErr != nil {
			return runErr
		}
		reply = out
		rec.Touch()
		return nil
	})

	metrics.RecordChatTurn(time.Since(start), err == nil)
	if err != nil {
		lg := requestid.Logger(ctx, m.logger)
		lg.Warn().
			Str("username", username).
			Err(err).
			Msg("Chat turn failed")
		return "", err
	}
	return reply, nil
}

// Logout removes the user's session. Idempotent: logging out a user with no
// session succeeds silently.
func (m *Manager) Logout(username string) {
	if m.store.Remove(username) {
		metrics.SetActiveSessions(m.store.Len())
		m.notify(Event{Type: EventLogout, Username: username, Time: time.Now()})
		m.logger.Info().Str("username", username).Msg("Session logged out")
	}
}

// ListActiveUsers returns a consistent snapshot of live sessions.
func (m *Manager) ListActiveUsers() []ActiveUser {
	return m.store.ListActive()
}

// SessionInfo describes one live session for the config endpoint.
type SessionInfo struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Model     string    `json:"model_name"`
	Workspace string    `json:"workspace"`
	CreatedAt time.Time `json:"created_at"`
}

// Describe returns metadata for a user's live session.
func (m *Manager) Describe(username string) (SessionInfo, error) {
	rec, ok := m.store.Get(username)
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return SessionInfo{
		Username:  rec.Username,
		Role:      rec.Role,
		Model:     rec.Model,
		Workspace: rec.Workspace,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Close tears down every session. Used at process shutdown; tool providers
// are shut down separately by their registry.
func (m *Manager) Close() {
	m.store.Clear()
	metrics.SetActiveSessions(0)
	m.logger.Info().Msg("Session manager closed")
}

// notifyEvicted is called by the reaper so evictions flow through the same
// event and metric paths as explicit logouts.
func (m *Manager) notifyEvicted(username string) {
	metrics.RecordEviction()
	metrics.SetActiveSessions(m.store.Len())
	m.notify(Event{Type: EventEvicted, Username: username, Time: time.Now()})
}

func (m *Manager) notify(ev Event) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}

func (m *Manager) ensureWorkspace(username string) (string, error) {
	if m.workspaceRoot == "" {
		return "", nil
	}
	dir := filepath.Join(m.workspaceRoot, "workspace_"+username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}
