// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"context"
)

// contextKey is the private key of the logger stored in a context.
type contextKey struct{}

// WithContext returns a copy of ctx carrying logger. A nil logger leaves ctx untouched.
func WithContext(ctx context.Context, logger Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger carried by ctx, or a logger discarding every message.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return nullLogger
	}

	if logger, ok := ctx.Value(contextKey{}).(Logger); ok {
		return logger
	}
	return nullLogger
}
