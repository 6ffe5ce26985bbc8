package handlers

import (
	"context"
	"reflect"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/jsoncodec"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/eventbus/metadata"
)

// JSONHandlerRegistration wires a typed JSON handler to a routing key.
type JSONHandlerRegistration[T any] struct {
	Name       string
	ConsumeKey string
	Handler    JSONMessageHandler[T]
}

// JSONMessageContext exposes the decoded payload and metadata for JSON handlers.
type JSONMessageContext[T any] struct {
	MessageContextBase
	Payload T
}

// JSONMessageHandler processes a decoded JSON event. Handlers publish any
// follow-up events themselves through a Producer; returning an error nacks
// the delivery so it runs through the retry and poison queue chain.
type JSONMessageHandler[T any] func(ctx context.Context, event JSONMessageContext[T]) error

// BuildJSONHandler converts a typed JSON handler into a Watermill handler.
// Payloads that fail to decode are unprocessable and end up on the poison
// queue rather than in an endless redelivery loop.
func BuildJSONHandler[T any](handler JSONMessageHandler[T], logger logging.ServiceLogger) (message.NoPublishHandlerFunc, error) {
	if handler == nil {
		return nil, errs.ErrHandlerRequired
	}

	prototypeFactory, err := jsonPrototypeFactory[T]()
	if err != nil {
		return nil, err
	}

	return func(msg *message.Message) error {
		typed := prototypeFactory()

		if err := jsoncodec.Unmarshal(msg.Payload, typed); err != nil {
			return errs.NewUnprocessableEvent(string(msg.Payload), err)
		}

		event := JSONMessageContext[T]{
			MessageContextBase: MessageContextBase{
				Metadata: metadata.Metadata(msg.Metadata).Clone(),
				Logger:   logger,
			},
			Payload: typed,
		}

		return handler(msg.Context(), event)
	}, nil
}

func jsonPrototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, errs.ErrEventTypePointer
	}
	elem := typ.Elem()
	return func() T {
		clone := reflect.New(elem).Interface()
		return clone.(T)
	}, nil
}
