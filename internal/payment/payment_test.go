package payment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/eventbus/metadata"
	"github.com/microshop/choreo/internal/events"
)

type fakeRepo struct {
	mu       sync.Mutex
	payments map[string]*Payment
	err      error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{payments: make(map[string]*Payment)}
}

func (r *fakeRepo) Add(_ context.Context, payment *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	clone := *payment
	r.payments[payment.OrderID] = &clone
	return nil
}

func (r *fakeRepo) GetByOrderID(_ context.Context, orderID string) (*Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, false, r.err
	}
	payment, ok := r.payments[orderID]
	if !ok {
		return nil, false, nil
	}
	clone := *payment
	return &clone, true, nil
}

func (r *fakeRepo) List(_ context.Context) ([]*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	payments := make([]*Payment, 0, len(r.payments))
	for _, p := range r.payments {
		clone := *p
		payments = append(payments, &clone)
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID < payments[j].ID })
	return payments, nil
}

func (r *fakeRepo) Update(_ context.Context, payment *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	clone := *payment
	r.payments[payment.OrderID] = &clone
	return nil
}

type publishedEvent struct {
	routingKey string
	event      any
}

type fakeProducer struct {
	mu        sync.Mutex
	published []publishedEvent
	err       error
}

func (p *fakeProducer) PublishJSON(_ context.Context, routingKey string, event any, _ metadata.Metadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedEvent{routingKey: routingKey, event: event})
	return nil
}

func (p *fakeProducer) Published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]publishedEvent, len(p.published))
	copy(clone, p.published)
	return clone
}

type fakeGateway struct {
	err   error
	calls int
}

func (g *fakeGateway) Charge(context.Context, string, float64) error {
	g.calls++
	return g.err
}

type nopLogger struct{}

func (nopLogger) With(logging.LogFields) logging.ServiceLogger { return nopLogger{} }
func (nopLogger) Debug(string, logging.LogFields)              {}
func (nopLogger) Info(string, logging.LogFields)               {}
func (nopLogger) Error(string, error, logging.LogFields)       {}
func (nopLogger) Trace(string, logging.LogFields)              {}

func orderCreated() events.OrderCreated {
	return events.OrderCreated{
		OrderID:     "ORD-1",
		CustomerID:  "CUST1A2B3C4D",
		TotalAmount: 100.00,
		Items:       []events.OrderItemRef{{ProductID: "p-1", Quantity: 2}},
	}
}

func TestHandleOrderCreatedCompletesPayment(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	producer := &fakeProducer{}
	gateway := &fakeGateway{}
	svc := NewService(repo, producer, gateway, time.Second, nopLogger{})

	if err := svc.HandleOrderCreated(context.Background(), orderCreated()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payment, found, _ := repo.GetByOrderID(context.Background(), "ORD-1")
	if !found {
		t.Fatal("expected payment to be persisted")
	}
	if payment.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %q", payment.Status)
	}
	if payment.ProcessedAt == nil {
		t.Fatal("expected processedAt to be set")
	}

	published := producer.Published()
	if len(published) != 1 {
		t.Fatalf("expected one published event, got %d", len(published))
	}
	if published[0].routingKey != events.KeyPaymentCompleted {
		t.Fatalf("unexpected routing key %q", published[0].routingKey)
	}
	result := published[0].event.(events.PaymentResult)
	if result.OrderID != "ORD-1" || result.Amount != 100.00 || result.Status != events.PaymentStatusCompleted {
		t.Fatalf("unexpected result payload %+v", result)
	}
}

func TestHandleOrderCreatedPublishesFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	producer := &fakeProducer{}
	gateway := &fakeGateway{err: errors.New("card declined")}
	svc := NewService(repo, producer, gateway, time.Second, nopLogger{})

	if err := svc.HandleOrderCreated(context.Background(), orderCreated()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payment, _, _ := repo.GetByOrderID(context.Background(), "ORD-1")
	if payment.Status != StatusFailed {
		t.Fatalf("expected Failed, got %q", payment.Status)
	}
	if payment.ProcessedAt != nil {
		t.Fatal("failed payments must not carry processedAt")
	}

	published := producer.Published()
	if len(published) != 1 || published[0].routingKey != events.KeyPaymentFailed {
		t.Fatalf("expected one payment.failed event, got %#v", published)
	}
}

func TestHandleOrderCreatedIsSingleChargePerOrder(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	producer := &fakeProducer{}
	gateway := &fakeGateway{}
	svc := NewService(repo, producer, gateway, time.Second, nopLogger{})
	ctx := context.Background()

	evt := orderCreated()
	if err := svc.HandleOrderCreated(ctx, evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.HandleOrderCreated(ctx, evt); err != nil {
		t.Fatalf("redelivery must not fail, got %v", err)
	}

	if gateway.calls != 1 {
		t.Fatalf("expected a single charge, got %d", gateway.calls)
	}

	// The redelivery re-announces the settled result instead of charging again.
	published := producer.Published()
	if len(published) != 2 {
		t.Fatalf("expected two result events, got %d", len(published))
	}
	for _, p := range published {
		if p.routingKey != events.KeyPaymentCompleted {
			t.Fatalf("unexpected routing key %q", p.routingKey)
		}
	}
}

func TestListPaymentsReturnsAllInCreationOrder(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := NewService(repo, &fakeProducer{}, &fakeGateway{}, time.Second, nopLogger{})
	ctx := context.Background()

	first := orderCreated()
	second := orderCreated()
	second.OrderID = "ORD-2"
	if err := svc.HandleOrderCreated(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.HandleOrderCreated(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payments, err := svc.ListPayments(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected two payments, got %d", len(payments))
	}
	if payments[0].OrderID != "ORD-1" || payments[1].OrderID != "ORD-2" {
		t.Fatalf("expected creation order, got %q then %q", payments[0].OrderID, payments[1].OrderID)
	}
}

func TestHandleOrderCreatedRejectsMalformedEvents(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeRepo(), &fakeProducer{}, &fakeGateway{}, time.Second, nopLogger{})
	ctx := context.Background()

	cases := []struct {
		name string
		evt  events.OrderCreated
	}{
		{name: "missing order id", evt: events.OrderCreated{TotalAmount: 100}},
		{name: "amount below range", evt: events.OrderCreated{OrderID: "ORD-1", TotalAmount: 0.5}},
		{name: "amount above range", evt: events.OrderCreated{OrderID: "ORD-1", TotalAmount: 200000}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.HandleOrderCreated(ctx, tc.evt)
			var unprocessable *errs.UnprocessableEventError
			if !errors.As(err, &unprocessable) {
				t.Fatalf("expected unprocessable event error, got %v", err)
			}
		})
	}
}

func TestSimulatedGatewayHonorsContext(t *testing.T) {
	t.Parallel()

	gateway := SimulatedGateway{Delay: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := gateway.Charge(ctx, "ORD-1", 100)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("charge must abort with the context, not sleep out the delay")
	}

	quick := SimulatedGateway{Delay: time.Millisecond}
	if err := quick.Charge(context.Background(), "ORD-1", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGatewayTimeoutFailsPayment(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	producer := &fakeProducer{}
	svc := NewService(repo, producer, SimulatedGateway{Delay: time.Minute}, 10*time.Millisecond, nopLogger{})

	if err := svc.HandleOrderCreated(context.Background(), orderCreated()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payment, _, _ := repo.GetByOrderID(context.Background(), "ORD-1")
	if payment.Status != StatusFailed {
		t.Fatalf("expected timeout to fail the payment, got %q", payment.Status)
	}
	published := producer.Published()
	if len(published) != 1 || published[0].routingKey != events.KeyPaymentFailed {
		t.Fatalf("expected payment.failed, got %#v", published)
	}
}
