package logging

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type contextKey int

var (
	loggerKey = contextKey(0)
	levelKey  = contextKey(1)
)

var ErrNoLoggerInContext = errors.New("no logger in context")

func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func LoggerFromContext(ctx context.Context) (*zap.Logger, error) {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger, nil
	}

	return nil, ErrNoLoggerInContext
}

// ContextWithLevel stores the adjustable level of the context's logger.
func ContextWithLevel(ctx context.Context, level *zap.AtomicLevel) context.Context {
	return context.WithValue(ctx, levelKey, level)
}

// LevelFromContext returns the adjustable level, or nil if there is none.
func LevelFromContext(ctx context.Context) *zap.AtomicLevel {
	level, _ := ctx.Value(levelKey).(*zap.AtomicLevel)
	return level
}
