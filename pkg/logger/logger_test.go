package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestFromContextCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	assert.Same(t, &log.Logger, FromContext(context.Background()))
	assert.Same(t, &log.Logger, FromContext(nil))
}
