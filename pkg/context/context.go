// Package context carries build tracing values through context.Context
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context keys for build tracing.
// Using unexported struct pointers prevents key collisions.
var (
	requestIDKey = &struct{}{}
	buildIDKey   = &struct{}{}
	stageKey     = &struct{}{}
	pluginKey    = &struct{}{}
	startTimeKey = &struct{}{}
)

// WithRequestID adds a request ID to the context
func WithRequestID(parent context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	return context.WithValue(parent, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id
	}
	return ""
}

// WithBuildID adds the id of the executing build
func WithBuildID(parent context.Context, buildID int64) context.Context {
	return context.WithValue(parent, buildIDKey, buildID)
}

// GetBuildID retrieves the build id, zero when absent
func GetBuildID(ctx context.Context) int64 {
	if id, ok := ctx.Value(buildIDKey).(int64); ok {
		return id
	}
	return 0
}

// WithStage adds the current pipeline stage name
func WithStage(parent context.Context, stage string) context.Context {
	return context.WithValue(parent, stageKey, stage)
}

// GetStage retrieves the current stage name
func GetStage(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey).(string); ok {
		return s
	}
	return ""
}

// WithPlugin adds the executing plugin name
func WithPlugin(parent context.Context, plugin string) context.Context {
	return context.WithValue(parent, pluginKey, plugin)
}

// GetPlugin retrieves the executing plugin name
func GetPlugin(ctx context.Context) string {
	if p, ok := ctx.Value(pluginKey).(string); ok {
		return p
	}
	return ""
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetDuration calculates the duration since the start time in context,
// zero when no start time was recorded
func GetDuration(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

// GenerateRequestID creates a new unique request ID
func GenerateRequestID() string {
	return "req_" + uuid.New().String()
}

// ForBuild enriches a context for executing one build
func ForBuild(parent context.Context, buildID int64) context.Context {
	ctx := parent
	if GetRequestID(ctx) == "" {
		ctx = WithRequestID(ctx, "")
	}
	ctx = WithBuildID(ctx, buildID)
	return WithStartTime(ctx, time.Now())
}
