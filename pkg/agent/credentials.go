package agent

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCredential reports an API key that could not be resolved. A key that
// resolves but is rejected by the provider surfaces later as ErrModel on the
// first chat turn.
var ErrCredential = errors.New("credential error")

// envRefMarker prefixes an API key value that names an environment variable
// instead of carrying the key literally, e.g. "$OPENAI_API_KEY".
const envRefMarker = "$"

// ResolveAPIKey turns a configured API key value into a usable key. Values
// starting with the marker character are looked up in the process
// environment; everything else is taken literally.
func ResolveAPIKey(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: api key is empty", ErrCredential)
	}

	if !strings.HasPrefix(value, envRefMarker) {
		return value, nil
	}

	name := strings.TrimPrefix(value, envRefMarker)
	if name == "" {
		return "", fmt.Errorf("%w: empty environment reference", ErrCredential)
	}
	resolved := os.Getenv(name)
	if resolved == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrCredential, name)
	}
	return resolved, nil
}
