// Package payment processes payments for created orders. Processing is
// driven entirely by order.created events; the outcome is announced as a
// payment.completed or payment.failed event which the order service folds
// back into the order status.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/microshop/choreo/internal/eventbus"
	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/ids"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/eventbus/metadata"
	"github.com/microshop/choreo/internal/events"
	"github.com/microshop/choreo/internal/order"
)

// Payment statuses.
const (
	StatusPending    = "Pending"
	StatusProcessing = "Processing"
	StatusCompleted  = "Completed"
	StatusFailed     = "Failed"
	StatusRefunded   = "Refunded"
)

// Payment is one charge attempt for an order. One payment per order is the
// intended invariant, enforced by a precondition on the handler rather than
// a database constraint.
type Payment struct {
	ID          string
	OrderID     string
	CustomerID  string
	Amount      float64
	Status      string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Repository stores payments. List returns them in creation order.
type Repository interface {
	Add(ctx context.Context, payment *Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*Payment, bool, error)
	List(ctx context.Context) ([]*Payment, error)
	Update(ctx context.Context, payment *Payment) error
}

// Gateway is the external-call boundary to the payment provider. Charge
// must honor context cancellation; the handler bounds every charge with a
// timeout.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount float64) error
}

// SimulatedGateway stands in for a real provider round-trip with a fixed
// processing delay. Unlike a bare sleep it aborts as soon as the context
// does.
type SimulatedGateway struct {
	Delay time.Duration
}

func (g SimulatedGateway) Charge(ctx context.Context, _ string, _ float64) error {
	timer := time.NewTimer(g.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Service implements payment processing.
type Service struct {
	repo     Repository
	producer eventbus.Producer
	gateway  Gateway
	logger   logging.ServiceLogger

	chargeTimeout time.Duration
	now           func() time.Time
}

// NewService wires the payment service. chargeTimeout bounds each gateway
// round-trip.
func NewService(repo Repository, producer eventbus.Producer, gateway Gateway, chargeTimeout time.Duration, logger logging.ServiceLogger) *Service {
	return &Service{
		repo:          repo,
		producer:      producer,
		gateway:       gateway,
		logger:        logger,
		chargeTimeout: chargeTimeout,
		now:           time.Now,
	}
}

// HandleOrderCreated charges the order and publishes the outcome. The
// payment is persisted as Processing before the gateway call and settles as
// Completed or Failed afterwards. A redelivered event for an already settled
// order re-publishes the result instead of charging twice.
func (s *Service) HandleOrderCreated(ctx context.Context, evt events.OrderCreated) error {
	if evt.OrderID == "" {
		return errs.NewUnprocessableEvent(evt.CustomerID, errors.New("order.created event is missing orderId"))
	}
	if evt.TotalAmount < order.MinOrderAmount || evt.TotalAmount > order.MaxOrderAmount {
		return errs.NewUnprocessableEvent(evt.OrderID, errors.New("order amount is outside the accepted range"))
	}

	if existing, found, err := s.repo.GetByOrderID(ctx, evt.OrderID); err != nil {
		return err
	} else if found {
		return s.republishResult(ctx, existing)
	}

	payment := &Payment{
		ID:         ids.CreateULID(),
		OrderID:    evt.OrderID,
		CustomerID: evt.CustomerID,
		Amount:     evt.TotalAmount,
		Status:     StatusProcessing,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Add(ctx, payment); err != nil {
		return err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	if err := s.gateway.Charge(chargeCtx, payment.OrderID, payment.Amount); err != nil {
		s.logger.Error("Payment charge failed", err, logging.LogFields{
			"order_id":   payment.OrderID,
			"payment_id": payment.ID,
		})
		payment.Status = StatusFailed
		if updateErr := s.repo.Update(ctx, payment); updateErr != nil {
			return updateErr
		}
		return s.publishResult(ctx, payment, events.KeyPaymentFailed)
	}

	processedAt := s.now().UTC()
	payment.Status = StatusCompleted
	payment.ProcessedAt = &processedAt
	if err := s.repo.Update(ctx, payment); err != nil {
		return err
	}

	s.logger.Info("Payment completed", logging.LogFields{
		"order_id":   payment.OrderID,
		"payment_id": payment.ID,
		"amount":     payment.Amount,
	})
	return s.publishResult(ctx, payment, events.KeyPaymentCompleted)
}

// republishResult re-emits the settled outcome for a redelivered order
// event. A payment still Processing belongs to an in-flight charge; the
// redelivery is acked without a second charge.
func (s *Service) republishResult(ctx context.Context, payment *Payment) error {
	switch payment.Status {
	case StatusCompleted:
		s.logger.Info("Order already paid, re-announcing result", logging.LogFields{
			"order_id": payment.OrderID,
		})
		return s.publishResult(ctx, payment, events.KeyPaymentCompleted)
	case StatusFailed:
		s.logger.Info("Order already failed, re-announcing result", logging.LogFields{
			"order_id": payment.OrderID,
		})
		return s.publishResult(ctx, payment, events.KeyPaymentFailed)
	default:
		s.logger.Info("Payment already in flight", logging.LogFields{
			"order_id": payment.OrderID,
			"status":   payment.Status,
		})
		return nil
	}
}

func (s *Service) publishResult(ctx context.Context, payment *Payment, routingKey string) error {
	result := events.PaymentResult{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Status:    payment.Status,
	}
	return s.producer.PublishJSON(ctx, routingKey, result, metadata.Metadata{})
}

// GetByOrderID looks up the payment for an order.
func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*Payment, bool, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// ListPayments returns all payments in creation order.
func (s *Service) ListPayments(ctx context.Context) ([]*Payment, error) {
	return s.repo.List(ctx)
}
