package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"event-companion-sync/internal/config"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return NewWithWriter(cfg, dev, os.Stdout)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(cfg config.LogConfig, dev bool, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		base = zerolog.New(out).Level(level).With().Timestamp().Logger()
	} else {
		base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// Simple sampling: keep 1 of every 100 events below warn.
		sampled := base.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BasicSampler{N: 100},
			DebugSampler: &zerolog.BasicSampler{N: 100},
			InfoSampler:  &zerolog.BasicSampler{N: 100},
		})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxJobID   ctxKey = "job_id"
)

// With attaches trace_id and job_id from ctx to a child of base.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxJobID).(string); ok {
		l = l.Str("job_id", v)
	}
	logger := l.Logger()
	return &logger
}

// Component returns a child logger tagged with the component name.
func Component(base *zerolog.Logger, name string) *zerolog.Logger {
	if base == nil {
		nop := zerolog.Nop()
		return &nop
	}
	l := base.With().Str("component", name).Logger()
	return &l
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "SyncUC.Transition")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxJobID, id)
}

// TraceIDFrom returns the trace id stored in ctx, if any.
func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
