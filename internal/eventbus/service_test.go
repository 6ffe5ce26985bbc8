package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/microshop/choreo/internal/eventbus/config"
	"github.com/microshop/choreo/internal/eventbus/handlers"
	"github.com/microshop/choreo/internal/eventbus/metadata"
)

func testChannelConfig() *config.Config {
	return &config.Config{
		ServiceName:          "order",
		PubSubSystem:         "channel",
		PoisonQueue:          "choreo.poison",
		RetryMaxRetries:      2,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
		DedupWindow:          time.Minute,
	}
}

func TestServiceDeliversTypedEvents(t *testing.T) {
	svc := NewService(testChannelConfig(), &recordingLogger{}, context.Background(), ServiceDependencies{})

	received := make(chan *testEvent, 1)
	err := RegisterJSONHandler(svc, handlers.JSONHandlerRegistration[*testEvent]{
		Name:       "order-created-handler",
		ConsumeKey: "order.created",
		Handler: func(ctx context.Context, evt handlers.JSONMessageContext[*testEvent]) error {
			if evt.CorrelationID() == "" {
				t.Error("expected a correlation id")
			}
			select {
			case received <- evt.Payload:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-svc.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	event := &testEvent{OrderID: "ORD-1", Amount: 99.99}
	if err := svc.PublishJSON(ctx, "order.created", event, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-received:
		if *got != *event {
			t.Fatalf("unexpected payload %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event never reached the handler")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("router did not shut down")
	}
}

func TestServiceRetriesFailedDeliveries(t *testing.T) {
	svc := NewService(testChannelConfig(), &recordingLogger{}, context.Background(), ServiceDependencies{})

	var attempts atomic.Int32
	succeeded := make(chan struct{}, 1)
	err := RegisterJSONHandler(svc, handlers.JSONHandlerRegistration[*testEvent]{
		Name:       "flaky-handler",
		ConsumeKey: "order.created",
		Handler: func(ctx context.Context, evt handlers.JSONMessageContext[*testEvent]) error {
			if attempts.Add(1) == 1 {
				return errors.New("transient failure")
			}
			select {
			case succeeded <- struct{}{}:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = svc.Start(ctx) }()

	select {
	case <-svc.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	md := metadata.New(metadata.KeyCorrelationID, "corr-retry")
	if err := svc.PublishJSON(ctx, "order.created", &testEvent{OrderID: "ORD-2"}, md); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-succeeded:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was never retried to success")
	}
	if got := attempts.Load(); got < 2 {
		t.Fatalf("expected at least two attempts, got %d", got)
	}
}
