package eventbus

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/jsoncodec"
	"github.com/microshop/choreo/internal/eventbus/metadata"
)

type testEvent struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

func TestPublishJSONValidations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if err := PublishJSON(ctx, nil, "order.created", &testEvent{}, nil); !errors.Is(err, errs.ErrPublisherRequired) {
		t.Fatalf("expected publisher required error, got %v", err)
	}

	publisher := &testPublisher{}
	if err := PublishJSON(ctx, publisher, "", &testEvent{}, nil); !errors.Is(err, errs.ErrRoutingKeyRequired) {
		t.Fatalf("expected routing key required error, got %v", err)
	}
	if err := PublishJSON(ctx, publisher, "order.created", nil, nil); !errors.Is(err, errs.ErrEventPayloadRequired) {
		t.Fatalf("expected payload required error, got %v", err)
	}
}

func TestPublishJSONPublishesUnderRoutingKey(t *testing.T) {
	t.Parallel()

	publisher := &testPublisher{}
	event := &testEvent{OrderID: "ORD-1", Amount: 42.5}
	md := metadata.New(metadata.KeyCorrelationID, "corr-1")

	if err := PublishJSON(context.Background(), publisher, "order.created", event, md); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	published := publisher.Published()
	if len(published) != 1 {
		t.Fatalf("expected one published message, got %d", len(published))
	}
	if published[0].topic != "order.created" {
		t.Fatalf("unexpected topic %q", published[0].topic)
	}

	msg := published[0].msg
	if msg.UUID == "" {
		t.Fatal("expected a message uuid")
	}
	if msg.Metadata[metadata.KeyCorrelationID] != "corr-1" {
		t.Fatal("expected correlation id to be carried over")
	}

	var decoded testEvent
	if err := jsoncodec.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("payload did not round trip: %v", err)
	}
	if decoded != *event {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestPublishJSONDoesNotMutateCallerMetadata(t *testing.T) {
	t.Parallel()

	publisher := &testPublisher{}
	md := metadata.Metadata{}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	if err := PublishJSON(ctx, publisher, "order.created", &testEvent{OrderID: "ORD-2"}, md); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(md) != 0 {
		t.Fatalf("caller metadata must stay untouched, got %v", md)
	}

	published := publisher.Published()
	if len(published) != 1 {
		t.Fatalf("expected one published message, got %d", len(published))
	}
	if published[0].msg.Metadata[metadata.KeyTraceparent] == "" {
		t.Fatal("expected traceparent header on the published message")
	}
}
