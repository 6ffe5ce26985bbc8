package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/handlers"
)

func TestRegisterMessageHandlerValidations(t *testing.T) {
	t.Parallel()

	handler := func(*message.Message) error { return nil }

	if err := RegisterMessageHandler(nil, MessageHandlerRegistration{
		Name:       "h",
		ConsumeKey: "order.created",
		Handler:    handler,
	}); !errors.Is(err, errs.ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}

	svc := newTestService(t)

	cases := []struct {
		name string
		cfg  MessageHandlerRegistration
		want error
	}{
		{
			name: "missing handler",
			cfg:  MessageHandlerRegistration{Name: "h", ConsumeKey: "order.created"},
			want: errs.ErrHandlerRequired,
		},
		{
			name: "missing consume key",
			cfg:  MessageHandlerRegistration{Name: "h", Handler: handler},
			want: errs.ErrConsumeQueueRequired,
		},
		{
			name: "missing name",
			cfg:  MessageHandlerRegistration{ConsumeKey: "order.created", Handler: handler},
			want: errs.ErrHandlerNameRequired,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := RegisterMessageHandler(svc, tc.cfg); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if err := RegisterMessageHandler(svc, MessageHandlerRegistration{
		Name:       "order-created-handler",
		ConsumeKey: "order.created",
		Handler:    handler,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegisterJSONHandlerRequiresPointerType(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	err := RegisterJSONHandler(svc, handlers.JSONHandlerRegistration[testEvent]{
		Name:       "value-handler",
		ConsumeKey: "order.created",
		Handler: func(context.Context, handlers.JSONMessageContext[testEvent]) error {
			return nil
		},
	})
	if !errors.Is(err, errs.ErrEventTypePointer) {
		t.Fatalf("expected pointer type error, got %v", err)
	}
}

func TestRegisterJSONHandlerRegisters(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	err := RegisterJSONHandler(svc, handlers.JSONHandlerRegistration[*testEvent]{
		Name:       "order-created-handler",
		ConsumeKey: "order.created",
		Handler: func(context.Context, handlers.JSONMessageContext[*testEvent]) error {
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
