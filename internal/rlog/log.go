// Package rlog carries a structured logger through context.Context, the
// way Azure-dalec's util/bklog.G(ctx)/bklog.L pair does, generalized from a
// BuildKit-specific global to a plain logrus.FieldLogger this driver owns
// directly (we are not a BuildKit frontend, so there is no grpc log bridge
// to wire up).
package rlog

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// L is the package-level default logger, used wherever no context-carried
// logger is available (e.g. before the CLI has parsed --log-level).
var L = logrus.New()

// WithLogger returns a context carrying logger, retrievable later via G.
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// G returns the logger carried by ctx, or L if none was attached.
func G(ctx context.Context) logrus.FieldLogger {
	if logger, ok := ctx.Value(ctxKey{}).(logrus.FieldLogger); ok {
		return logger
	}
	return L
}

// WithFields is a convenience for G(ctx).WithFields(fields) that reads
// naturally at call sites peppered through the pipeline stages.
func WithFields(ctx context.Context, fields logrus.Fields) *logrus.Entry {
	return G(ctx).WithFields(fields)
}
