package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
	PartitionKey   = "partition"
	TopicKey       = "topic"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

// WithMessageID stores the event fingerprint so every log line for a record can be joined on it.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, ctxKey(MessageIDKey), messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ctxKey(ServiceNameKey), serviceName)
}

func WithPartition(ctx context.Context, topic string, partition int) context.Context {
	ctx = context.WithValue(ctx, ctxKey(TopicKey), topic)
	return context.WithValue(ctx, ctxKey(PartitionKey), partition)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func GetTopic(ctx context.Context) string {
	return stringValue(ctx, TopicKey)
}

func GetPartition(ctx context.Context) (int, bool) {
	p, ok := ctx.Value(ctxKey(PartitionKey)).(int)
	return p, ok
}

func stringValue(ctx context.Context, key string) string {
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, TraceIDKey, traceID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, MessageIDKey, messageID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, ServiceNameKey, serviceName)
	}

	if topic := GetTopic(ctx); topic != "" {
		fields = append(fields, TopicKey, topic)
	}

	if partition, ok := GetPartition(ctx); ok {
		fields = append(fields, PartitionKey, partition)
	}

	return fields
}
