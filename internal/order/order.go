// Package order implements the order command path that starts the
// fulfillment choreography: validate against business rules, persist the
// order, then announce it as an order-created and a stock-reservation event.
package order

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/microshop/choreo/internal/clients"
	"github.com/microshop/choreo/internal/eventbus"
	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/ids"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/eventbus/metadata"
	"github.com/microshop/choreo/internal/events"
	"github.com/microshop/choreo/internal/rules"
)

// Order statuses. Status is mutated only by the payment-result handler once
// the order exists.
const (
	StatusPending           = "Pending"
	StatusPaymentProcessing = "PaymentProcessing"
	StatusPaid              = "Paid"
	StatusCancelled         = "Cancelled"
	StatusCompleted         = "Completed"
)

// Order amount bounds enforced before an order is accepted.
const (
	MinOrderAmount = 1.00
	MaxOrderAmount = 100000.00
)

var customerIDPattern = regexp.MustCompile(`^CUST[0-9A-F]{8}$`)

// Item is one priced line of an order.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice float64
}

// Order is the aggregate the choreography revolves around.
type Order struct {
	ID          string
	CustomerID  string
	Items       []Item
	TotalAmount float64
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository stores orders. List returns them in creation order.
type Repository interface {
	Add(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, bool, error)
	List(ctx context.Context) ([]*Order, error)
	Update(ctx context.Context, order *Order) error
}

// CustomerDirectory checks customer existence on the customer service.
type CustomerDirectory interface {
	Exists(ctx context.Context, customerID string) (bool, error)
}

// ProductCatalog looks up products on the product service.
type ProductCatalog interface {
	Get(ctx context.Context, productID string) (*clients.ProductInfo, bool, error)
}

// ItemRequest is one requested line of a create-order command.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand creates an order for a customer.
type CreateOrderCommand struct {
	CustomerID string
	Items      []ItemRequest
}

// Service implements the order commands and the payment-result handler.
type Service struct {
	repo      Repository
	producer  eventbus.Producer
	customers CustomerDirectory
	catalog   ProductCatalog
	logger    logging.ServiceLogger

	now func() time.Time
}

// NewService wires the order service.
func NewService(repo Repository, producer eventbus.Producer, customers CustomerDirectory, catalog ProductCatalog, logger logging.ServiceLogger) *Service {
	return &Service{
		repo:      repo,
		producer:  producer,
		customers: customers,
		catalog:   catalog,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateOrder validates the command, persists the order as Pending and
// publishes the order-created and stock-reservation events. Validation runs
// before any persistence or publish, so a rejected command never emits a
// partial event. The two publishes are fire-and-forget: a failed publish is
// logged and the order stays persisted.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*Order, error) {
	var items []Item
	var total float64

	if err := rules.Validate(ctx,
		rules.New("order.items.required", "order must contain at least one item", func(context.Context) (bool, error) {
			return len(cmd.Items) > 0, nil
		}),
		rules.New("order.customer.id", "customer id is malformed", func(context.Context) (bool, error) {
			return customerIDPattern.MatchString(cmd.CustomerID), nil
		}),
		rules.New("order.customer.exists", "customer does not exist", func(ctx context.Context) (bool, error) {
			return s.customers.Exists(ctx, cmd.CustomerID)
		}),
		rules.New("order.product.available", "product does not exist or has insufficient stock", func(ctx context.Context) (bool, error) {
			items = items[:0]
			total = 0
			for _, req := range cmd.Items {
				if req.Quantity <= 0 {
					return false, nil
				}
				info, found, err := s.catalog.Get(ctx, req.ProductID)
				if err != nil {
					return false, err
				}
				if !found || info.Stock < req.Quantity {
					return false, nil
				}
				items = append(items, Item{
					ProductID: req.ProductID,
					Quantity:  req.Quantity,
					UnitPrice: info.Price,
				})
				total += info.Price * float64(req.Quantity)
			}
			return true, nil
		}),
		rules.New("order.amount.range", fmt.Sprintf("order total must be between %.2f and %.2f", MinOrderAmount, MaxOrderAmount), func(context.Context) (bool, error) {
			return total >= MinOrderAmount && total <= MaxOrderAmount, nil
		}),
	); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ord := &Order{
		ID:          ids.CreateULID(),
		CustomerID:  cmd.CustomerID,
		Items:       items,
		TotalAmount: total,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Add(ctx, ord); err != nil {
		return nil, err
	}

	itemRefs := make([]events.OrderItemRef, len(ord.Items))
	for i, item := range ord.Items {
		itemRefs[i] = events.OrderItemRef{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	s.publish(ctx, events.KeyOrderCreated, events.OrderCreated{
		OrderID:     ord.ID,
		CustomerID:  ord.CustomerID,
		TotalAmount: ord.TotalAmount,
		Items:       itemRefs,
	})
	s.publish(ctx, events.KeyStockReserve, events.StockReserve{
		OrderID: ord.ID,
		Items:   itemRefs,
	})

	return ord, nil
}

func (s *Service) publish(ctx context.Context, routingKey string, event any) {
	if err := s.producer.PublishJSON(ctx, routingKey, event, metadata.Metadata{}); err != nil {
		s.logger.Error("Failed to publish event", err, logging.LogFields{
			"routing_key": routingKey,
		})
	}
}

// GetOrder looks up an order by id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, bool, error) {
	return s.repo.Get(ctx, id)
}

// ListOrders returns all orders in creation order.
func (s *Service) ListOrders(ctx context.Context) ([]*Order, error) {
	return s.repo.List(ctx)
}

// ApplyPaymentResult moves the order to Paid when the payment completed and
// back to Pending otherwise. A result for an unknown order is logged and
// dropped; retrying cannot make the order appear.
func (s *Service) ApplyPaymentResult(ctx context.Context, evt events.PaymentResult) error {
	if evt.OrderID == "" {
		return errs.NewUnprocessableEvent(evt.PaymentID, errors.New("payment result is missing orderId"))
	}

	ord, found, err := s.repo.Get(ctx, evt.OrderID)
	if err != nil {
		return err
	}
	if !found {
		s.logger.Error("Payment result for unknown order", nil, logging.LogFields{
			"order_id":   evt.OrderID,
			"payment_id": evt.PaymentID,
		})
		return nil
	}

	if evt.Status == events.PaymentStatusCompleted {
		ord.Status = StatusPaid
	} else {
		ord.Status = StatusPending
	}
	ord.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, ord); err != nil {
		return err
	}

	s.logger.Info("Updated order status", logging.LogFields{
		"order_id": ord.ID,
		"status":   ord.Status,
	})
	return nil
}
