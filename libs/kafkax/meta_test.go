package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: TopicAppointmentCancelled, Key: []byte("appt-1")}
	meta := ExtractEventMeta(msg)
	assert.Equal(t, "appt-1", meta.EventID)
	assert.Equal(t, TopicAppointmentCancelled, meta.EventType)

	msg.Headers = []kafka.Header{
		{Key: "event_id", Value: []byte("evt-9")},
		{Key: "event_type", Value: []byte("custom")},
	}
	meta = ExtractEventMeta(msg)
	assert.Equal(t, EventMeta{EventID: "evt-9", EventType: "custom"}, meta)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, SplitBrokers(" k1:9092, ,k2:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	carrier := propagation.MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("e1")}})
	assert.Equal(t, "e1", HeaderValue(headers, "event_id"))
	assert.NotEmpty(t, HeaderValue(headers, "traceparent"))

	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", trace.SpanContextFromContext(out).TraceID().String())
}
