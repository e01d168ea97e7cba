package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Scope is the visibility tier of a capability.
type Scope string

const (
	ScopeStandard   Scope = "standard"
	ScopePrivileged Scope = "privileged"
)

// Role determines which capability scopes a session may see.
type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

// ConfigError reports a malformed tool descriptor file.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("tool config %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Descriptor describes how to start and connect to one tool provider.
type Descriptor struct {
	Name     string
	Command  string
	Args     []string
	Env      map[string]string
	Scope    Scope
	Required bool
	Source   string
}

// descriptorSchema validates descriptor files before loading. The transport
// enum is closed: an unknown transport is a ConfigError, not a skipped entry.
const descriptorSchema = `{
	"type": "object",
	"required": ["mcpServers"],
	"properties": {
		"mcpServers": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["command"],
				"properties": {
					"command": {"type": "string", "minLength": 1},
					"args": {"type": "array", "items": {"type": "string"}},
					"env": {"type": "object", "additionalProperties": {"type": "string"}},
					"transport": {"type": "string", "enum": ["stdio"]},
					"scope": {"type": "string", "enum": ["standard", "privileged"]},
					"required": {"type": "boolean"}
				},
				"additionalProperties": false
			}
		}
	}
}`

type descriptorFile struct {
	MCPServers map[string]descriptorEntry `json:"mcpServers"`
}

type descriptorEntry struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	Transport string            `json:"transport"`
	Scope     string            `json:"scope"`
	Required  bool              `json:"required"`
}

// LoadDescriptors parses and validates one descriptor file. Entries are
// returned sorted by name so registration order is deterministic.
func LoadDescriptors(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(descriptorSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}
	if !result.Valid() {
		return nil, &ConfigError{Source: path, Err: fmt.Errorf("schema violation: %s", result.Errors()[0])}
	}

	var file descriptorFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}
	if len(file.MCPServers) == 0 {
		return nil, &ConfigError{Source: path, Err: fmt.Errorf("no tool providers defined")}
	}

	names := make([]string, 0, len(file.MCPServers))
	for name := range file.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]Descriptor, 0, len(names))
	for _, name := range names {
		entry := file.MCPServers[name]
		scope := ScopeStandard
		if entry.Scope != "" {
			scope = Scope(entry.Scope)
		}
		descriptors = append(descriptors, Descriptor{
			Name:     name,
			Command:  entry.Command,
			Args:     entry.Args,
			Env:      entry.Env,
			Scope:    scope,
			Required: entry.Required,
			Source:   path,
		})
	}

	return descriptors, nil
}
