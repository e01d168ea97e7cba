package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAPIKey_Literal(t *testing.T) {
	key, err := ResolveAPIKey("sk-test-1234567890")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", key)
}

func TestResolveAPIKey_EnvReference(t *testing.T) {
	t.Setenv("WISMA_TEST_API_KEY", "sk-from-env")

	key, err := ResolveAPIKey("$WISMA_TEST_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", key)
}

func TestResolveAPIKey_Failures(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty value", ""},
		{"whitespace only", "   "},
		{"bare marker", "$"},
		{"unset variable", "$WISMA_TEST_UNSET_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveAPIKey(tt.value)
			assert.ErrorIs(t, err, ErrCredential)
		})
	}
}

func TestInferProvider(t *testing.T) {
	assert.Equal(t, "anthropic", InferProvider("claude-sonnet-4-20250514"))
	assert.Equal(t, "openai", InferProvider("gpt-4o"))
	assert.Equal(t, "openai", InferProvider("deepseek-chat"))
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider("gemini", "key", "")
	assert.Error(t, err)
}
