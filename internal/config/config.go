// Package config defines the daemon configuration and its loader.
package config

import "encoding/json"

// Config is the root wisma configuration.
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Auth    AuthConfig    `json:"auth" mapstructure:"auth"`
	Tools   ToolsConfig   `json:"tools" mapstructure:"tools"`
	Session SessionConfig `json:"session" mapstructure:"session"`
	Agent   AgentConfig   `json:"agent" mapstructure:"agent"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// DataDir is where wisma keeps its own files (logs, state).
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// WorkspaceRoot is where per-user workspace directories are created.
	WorkspaceRoot string `json:"workspace_root" mapstructure:"workspace_root"`
}

// ServerConfig holds the HTTP gateway configuration.
type ServerConfig struct {
	Host            string   `json:"host" mapstructure:"host"`
	Port            int      `json:"port" mapstructure:"port"`
	ShutdownTimeout int      `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
	AllowedOrigins  []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// AuthConfig holds the credential database configuration.
type AuthConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // postgres, sqlite3
	DSN    string `json:"dsn" mapstructure:"dsn"`
}

// ToolsConfig holds tool provider configuration.
type ToolsConfig struct {
	// Descriptors are paths to provider descriptor files, loaded in order.
	Descriptors []string `json:"descriptors" mapstructure:"descriptors"`
	// StartTimeout bounds each provider's startup handshake, in seconds.
	StartTimeout int `json:"start_timeout" mapstructure:"start_timeout"`
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	IdleTimeoutMinutes   int `json:"idle_timeout_minutes" mapstructure:"idle_timeout_minutes"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes" mapstructure:"sweep_interval_minutes"`
	MaxHistory           int `json:"max_history" mapstructure:"max_history"`
}

// AgentConfig holds model call configuration.
type AgentConfig struct {
	MaxToolTurns   int `json:"max_tool_turns" mapstructure:"max_tool_turns"`
	RequestTimeout int `json:"request_timeout" mapstructure:"request_timeout"` // seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 30,
			AllowedOrigins:  []string{"*"},
		},
		Auth: AuthConfig{
			Driver: "postgres",
		},
		Tools: ToolsConfig{
			StartTimeout: 30,
		},
		Session: SessionConfig{
			IdleTimeoutMinutes:   30,
			SweepIntervalMinutes: 5,
			MaxHistory:           100,
		},
		Agent: AgentConfig{
			MaxToolTurns:   10,
			RequestTimeout: 120,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
