package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey struct{}

func Init(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// WithRequestID stores a child logger tagged with request_id on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := log.With().Str("request_id", requestID).Logger()
	return context.WithValue(ctx, ctxKey{}, &l)
}

// FromContext returns the request-scoped logger, or the global one.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return l
		}
	}
	return &log.Logger
}
