package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "txindexer/pipeline"

// headerCarrier adapts kafka message headers to a TextMapCarrier.
type headerCarrier struct {
	headers *[]kafka.Header
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func InjectHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})
	return headers
}

func ExtractHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &headers})
}

// StartRecordSpan continues the producer's trace, if any, for one log record.
func StartRecordSpan(ctx context.Context, topic string, partition int, offset int64, headers []kafka.Header) (context.Context, trace.Span) {
	ctx = ExtractHeaders(ctx, headers)
	return GetTracer(instrumentationName).Start(ctx, "record.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.Int("messaging.kafka.destination.partition", partition),
			attribute.Int64("messaging.kafka.message.offset", offset),
		),
	)
}

func StartFlushSpan(ctx context.Context, partition, size, attempt int) (context.Context, trace.Span) {
	return GetTracer(instrumentationName).Start(ctx, "batch.flush",
		trace.WithAttributes(
			attribute.Int("messaging.kafka.destination.partition", partition),
			attribute.Int("batch.size", size),
			attribute.Int("batch.attempt", attempt),
		),
	)
}

// TraceID returns the hex trace id of the span in ctx, empty when unsampled.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
