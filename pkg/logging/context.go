package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	MessageIDKey   contextKey = "message_id"
	ServiceNameKey contextKey = "service_name"
	BucketKey      contextKey = "bucket"
	ObjectKeyKey   contextKey = "key"
	PhaseKey       contextKey = "phase"
)

// logFieldOrder fixes the order in which context values are emitted.
var logFieldOrder = []contextKey{
	TraceIDKey,
	MessageIDKey,
	ServiceNameKey,
	BucketKey,
	ObjectKeyKey,
	PhaseKey,
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

// WithObject tags ctx with the source object a record refers to.
func WithObject(ctx context.Context, bucket, key string) context.Context {
	ctx = context.WithValue(ctx, BucketKey, bucket)
	return context.WithValue(ctx, ObjectKeyKey, key)
}

func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, PhaseKey, phase)
}

func get(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string     { return get(ctx, TraceIDKey) }
func GetMessageID(ctx context.Context) string   { return get(ctx, MessageIDKey) }
func GetServiceName(ctx context.Context) string { return get(ctx, ServiceNameKey) }
func GetPhase(ctx context.Context) string       { return get(ctx, PhaseKey) }

func GetObject(ctx context.Context) (bucket, key string) {
	return get(ctx, BucketKey), get(ctx, ObjectKeyKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 2*len(logFieldOrder))

	for _, key := range logFieldOrder {
		if v := get(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}

	return fields
}
