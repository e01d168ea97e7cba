package config

import (
	"fmt"
	"os"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}
	if err := c.Tools.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Agent.validate(); err != nil {
		return err
	}
	return c.Logging.validate()
}

func (s ServerConfig) validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", s.Port)
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("server: shutdown timeout cannot be negative")
	}
	return nil
}

func (a AuthConfig) validate() error {
	switch a.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("auth: unsupported driver %q", a.Driver)
	}
	if a.DSN == "" {
		return fmt.Errorf("auth: dsn is required")
	}
	return nil
}

func (t ToolsConfig) validate() error {
	for _, path := range t.Descriptors {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tools: descriptor file %s: %w", path, err)
		}
	}
	if t.StartTimeout <= 0 {
		return fmt.Errorf("tools: start timeout must be positive")
	}
	return nil
}

func (s SessionConfig) validate() error {
	if s.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("session: idle timeout must be positive")
	}
	if s.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("session: sweep interval must be positive")
	}
	if s.MaxHistory < 0 {
		return fmt.Errorf("session: max history cannot be negative")
	}
	return nil
}

func (a AgentConfig) validate() error {
	if a.MaxToolTurns <= 0 {
		return fmt.Errorf("agent: max tool turns must be positive")
	}
	if a.RequestTimeout <= 0 {
		return fmt.Errorf("agent: request timeout must be positive")
	}
	return nil
}

func (l LoggingConfig) validate() error {
	if l.Level != "" && !validLogLevels[l.Level] {
		return fmt.Errorf("logging: unknown level %q", l.Level)
	}
	if l.MaxSize < 0 || l.MaxAge < 0 {
		return fmt.Errorf("logging: rotation limits cannot be negative")
	}
	return nil
}
