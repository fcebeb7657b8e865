package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceparentHeader is the W3C header name under which the outbox
// relay forwards the traceparent captured at write time.
const TraceparentHeader = "traceparent"

// InjectKafkaHeaders appends the current span context to the message
// headers. Producers that publish through the outbox do not use this;
// their traceparent rides along as a column and reaches the headers via
// the dispatcher.
func InjectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// ExtractKafkaHeaders resumes the trace stored in the message headers.
// Messages without trace headers simply start a fresh root span.
func ExtractKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := make(propagation.MapCarrier, len(headers))
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
