package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/ids"
	"github.com/microshop/choreo/internal/eventbus/metadata"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	t.Parallel()

	svc := &Service{}
	mw := svc.correlationIDMiddleware()

	t.Run("adds missing id", func(t *testing.T) {
		msg := message.NewMessage(ids.CreateULID(), nil)
		msg.Metadata = message.Metadata{}
		called := false
		_, err := mw(func(m *message.Message) ([]*message.Message, error) {
			called = true
			if m.Metadata[metadata.KeyCorrelationID] == "" {
				t.Fatal("expected correlation id to be populated")
			}
			return nil, nil
		})(msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Fatal("handler not invoked")
		}
	})

	t.Run("keeps existing id", func(t *testing.T) {
		msg := message.NewMessage(ids.CreateULID(), nil)
		msg.Metadata = message.Metadata{metadata.KeyCorrelationID: "fixed"}
		_, err := mw(func(m *message.Message) ([]*message.Message, error) {
			if m.Metadata[metadata.KeyCorrelationID] != "fixed" {
				t.Fatal("expected correlation id to be preserved")
			}
			return nil, nil
		})(msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestDedupMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("passes through without store", func(t *testing.T) {
		svc := newTestService(t)
		mw := svc.dedupMiddleware()
		msg := message.NewMessage(ids.CreateULID(), nil)
		called := false
		if _, err := mw(func(m *message.Message) ([]*message.Message, error) {
			called = true
			return nil, nil
		})(msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Fatal("handler not invoked")
		}
	})

	t.Run("drops duplicate delivery", func(t *testing.T) {
		svc := newTestService(t)
		svc.dedup = NewMemoryDedupStore(time.Minute)
		mw := svc.dedupMiddleware()

		msg := message.NewMessage(ids.CreateULID(), nil)
		calls := 0
		handler := mw(func(m *message.Message) ([]*message.Message, error) {
			calls++
			return nil, nil
		})

		for i := 0; i < 2; i++ {
			if _, err := handler(msg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if calls != 1 {
			t.Fatalf("expected exactly one handler invocation, got %d", calls)
		}
	})

	t.Run("failed handler stays eligible for redelivery", func(t *testing.T) {
		svc := newTestService(t)
		svc.dedup = NewMemoryDedupStore(time.Minute)
		mw := svc.dedupMiddleware()

		msg := message.NewMessage(ids.CreateULID(), nil)
		calls := 0
		handler := mw(func(m *message.Message) ([]*message.Message, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("transient failure")
			}
			return nil, nil
		})

		if _, err := handler(msg); err == nil {
			t.Fatal("expected first delivery to fail")
		}
		if _, err := handler(msg); err != nil {
			t.Fatalf("unexpected error on redelivery: %v", err)
		}
		if calls != 2 {
			t.Fatalf("expected redelivery to reach the handler, got %d calls", calls)
		}
	})

	t.Run("store failure never blocks processing", func(t *testing.T) {
		svc := newTestService(t)
		svc.dedup = &failingDedupStore{}
		mw := svc.dedupMiddleware()

		msg := message.NewMessage(ids.CreateULID(), nil)
		called := false
		if _, err := mw(func(m *message.Message) ([]*message.Message, error) {
			called = true
			return nil, nil
		})(msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Fatal("handler not invoked")
		}
	})
}

type failingDedupStore struct{}

func (failingDedupStore) Seen(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func (failingDedupStore) MarkProcessed(context.Context, string) error {
	return errors.New("store down")
}

func TestRetryMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("retries transient errors", func(t *testing.T) {
		svc := newTestService(t)
		mw := svc.retryMiddlewareWithConfig(RetryMiddlewareConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
		})

		msg := message.NewMessage(ids.CreateULID(), nil)
		msg.SetContext(context.Background())
		calls := 0
		_, err := mw(func(m *message.Message) ([]*message.Message, error) {
			calls++
			return nil, errors.New("transient")
		})(msg)
		if err == nil {
			t.Fatal("expected error after exhausting retries")
		}
		if calls != 3 {
			t.Fatalf("expected initial attempt plus two retries, got %d calls", calls)
		}
	})

	t.Run("gives up on unprocessable events", func(t *testing.T) {
		svc := newTestService(t)
		mw := svc.retryMiddlewareWithConfig(RetryMiddlewareConfig{
			MaxRetries:      5,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
		})

		msg := message.NewMessage(ids.CreateULID(), nil)
		msg.SetContext(context.Background())
		calls := 0
		_, err := mw(func(m *message.Message) ([]*message.Message, error) {
			calls++
			return nil, errs.NewUnprocessableEvent("{}", errors.New("bad payload"))
		})(msg)
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Fatalf("expected no retries for unprocessable event, got %d calls", calls)
		}
	})
}

func TestPoisonQueueMiddleware(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	svc.Conf.PoisonQueue = "choreo.poison"
	publisher := svc.publisher.(*testPublisher)

	reg := PoisonQueueMiddleware(nil)
	mw, err := reg.Builder(svc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("routes unprocessable to poison queue", func(t *testing.T) {
		msg := message.NewMessage(ids.CreateULID(), []byte("not json"))
		msg.SetContext(context.Background())
		_, err := mw(func(m *message.Message) ([]*message.Message, error) {
			return nil, errs.NewUnprocessableEvent("not json", errors.New("decode failed"))
		})(msg)
		if err != nil {
			t.Fatalf("poisoned message must be acked, got %v", err)
		}
		published := publisher.Published()
		if len(published) != 1 || published[0].topic != "choreo.poison" {
			t.Fatalf("expected one message on the poison queue, got %#v", published)
		}
	})

	t.Run("transient errors bypass the poison queue", func(t *testing.T) {
		msg := message.NewMessage(ids.CreateULID(), nil)
		msg.SetContext(context.Background())
		_, err := mw(func(m *message.Message) ([]*message.Message, error) {
			return nil, errors.New("db unavailable")
		})(msg)
		if err == nil {
			t.Fatal("transient errors must propagate for redelivery")
		}
	})
}

func TestRegisterMiddlewareValidations(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	if err := svc.RegisterMiddleware(MiddlewareRegistration{Name: "empty"}); err == nil {
		t.Fatal("expected error for registration without middleware or builder")
	}

	if err := (&Service{}).RegisterMiddleware(RecovererMiddleware()); err == nil {
		t.Fatal("expected error without router")
	}
}
