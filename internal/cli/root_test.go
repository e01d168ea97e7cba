package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := RootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "wisma version "+version)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd().Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["config"])
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wisma.json")

	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })

	out, err := runCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Contains(t, parsed, "server")

	out, err = runCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"session"`)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wisma.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":0}}`), 0o644))

	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })

	_, err := runCommand(t, "serve")
	assert.Error(t, err)
}
