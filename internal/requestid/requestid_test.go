package requestid

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := With(context.Background(), "req-123")
	assert.Equal(t, "req-123", From(ctx))
}

func TestFromMissing(t *testing.T) {
	assert.Empty(t, From(context.Background()))
}

func TestNewIsUnique(t *testing.T) {
	assert.NotEqual(t, New(), New())
}

func TestLoggerAttachesID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	lg := Logger(With(context.Background(), "req-123"), base)
	lg.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)

	buf.Reset()
	lg = Logger(context.Background(), base)
	lg.Info().Msg("hello")
	assert.NotContains(t, buf.String(), "request_id")
}
