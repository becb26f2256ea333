// internal/logging/context.go
package logging

import (
	"context"

	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if category := CategoryFromContext(ctx); category != "" {
		fields = append(fields, zap.String("category", category))
	}
	if sourcePath := SourcePathFromContext(ctx); sourcePath != "" {
		fields = append(fields, zap.String("source_path", sourcePath))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// Context key types
type categoryCtxKey struct{}
type sourcePathCtxKey struct{}
type requestCtxKey struct{}

// WithCategory adds the artifact category being handled to context.
func WithCategory(ctx context.Context, category string) context.Context {
	return context.WithValue(ctx, categoryCtxKey{}, category)
}

// CategoryFromContext extracts the category from context.
func CategoryFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(categoryCtxKey{}).(string); ok {
		return c
	}
	return ""
}

// WithSourcePath adds the source path of the item in flight to context.
func WithSourcePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, sourcePathCtxKey{}, path)
}

// SourcePathFromContext extracts the source path from context.
func SourcePathFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(sourcePathCtxKey{}).(string); ok {
		return p
	}
	return ""
}

// WithRequestID adds an HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
