package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/ids"
	"github.com/microshop/choreo/internal/eventbus/jsoncodec"
	"github.com/microshop/choreo/internal/eventbus/metadata"
)

// Producer emits JSON events onto the configured transport. Command handlers
// depend on this interface rather than on the service itself.
type Producer interface {
	PublishJSON(ctx context.Context, routingKey string, event any, md metadata.Metadata) error
}

// NewMessageFromJSON converts the provided event into a Watermill message
// with the standard metadata required by the event pipeline. The message is
// marked persistent by the AMQP marshaler on publish.
func NewMessageFromJSON(event any, md metadata.Metadata) (*message.Message, error) {
	if event == nil {
		return nil, errs.ErrEventPayloadRequired
	}

	payload, err := jsoncodec.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(ids.CreateULID(), payload)
	msg.Metadata = message.Metadata(md.Clone())
	return msg, nil
}

// PublishJSON marshals the event and publishes it under the given routing
// key, exactly once per call. When a span is active in ctx its trace context
// is stamped onto the message as a traceparent header so the consumer can
// parent its own span to it.
func PublishJSON(ctx context.Context, publisher message.Publisher, routingKey string, event any, md metadata.Metadata) error {
	if publisher == nil {
		return errs.ErrPublisherRequired
	}
	if routingKey == "" {
		return errs.ErrRoutingKeyRequired
	}

	md = md.Clone()
	if ctx != nil {
		otel.GetTextMapPropagator().Inject(ctx, md)
	}

	msg, err := NewMessageFromJSON(event, md)
	if err != nil {
		return err
	}

	if ctx != nil {
		msg.SetContext(ctx)
	}

	return publisher.Publish(routingKey, msg)
}

// PublishJSON emits the event using the Service publisher so command handlers
// can publish without touching the Watermill APIs directly.
func (s *Service) PublishJSON(ctx context.Context, routingKey string, event any, md metadata.Metadata) error {
	if s == nil {
		return errors.New("event service is nil")
	}
	return PublishJSON(ctx, s.publisher, routingKey, event, md)
}
