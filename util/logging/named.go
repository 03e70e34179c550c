package logging

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Named returns a decorator that names the logger of an fx module and
// attaches fields to it.
func Named(name string, fields ...zap.Field) func(log *zap.Logger) *zap.Logger {
	return func(log *zap.Logger) *zap.Logger {
		return log.Named(name).With(fields...)
	}
}

// DecorateLogger names the logger within the enclosing fx module.
func DecorateLogger(name string, fields ...zap.Field) fx.Option {
	return fx.Decorate(Named(name, fields...))
}
