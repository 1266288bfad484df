package log

import (
	"context"

	"github.com/go-logr/logr"
)

// FromContext returns the logger stored in ctx. Without one, everything is discarded.
func FromContext(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}

func WithLogger(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// WithValues returns a context whose logger carries keysAndValues on every line.
func WithValues(ctx context.Context, keysAndValues ...interface{}) context.Context {
	logger := FromContext(ctx).WithValues(keysAndValues...)
	return logr.NewContext(ctx, logger)
}

// WithName returns a context whose logger has name appended to its name.
func WithName(ctx context.Context, name string) context.Context {
	logger := FromContext(ctx).WithName(name)
	return logr.NewContext(ctx, logger)
}
