// Package product owns the catalog: product records, price history, and the
// stock ledger. Stock is decremented by the stock-reservation handler as
// part of the order choreography.
package product

import (
	"context"
	"errors"
	"time"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/ids"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/events"
	"github.com/microshop/choreo/internal/rules"
)

// ErrNotFound reports a lookup for a product id that does not exist.
var ErrNotFound = errors.New("choreo: product not found")

// PriceChange is one entry of a product's price history.
type PriceChange struct {
	OldPrice  float64
	NewPrice  float64
	ChangedAt time.Time
}

// Product is a catalog entry with its stock level and price history.
type Product struct {
	ID           string
	Name         string
	Price        float64
	Stock        int
	PriceHistory []PriceChange
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository stores products. List returns them in creation order.
type Repository interface {
	Add(ctx context.Context, product *Product) error
	Get(ctx context.Context, id string) (*Product, bool, error)
	List(ctx context.Context) ([]*Product, error)
	Update(ctx context.Context, product *Product) error
}

// Service implements catalog commands and the stock-reservation handler.
type Service struct {
	repo   Repository
	logger logging.ServiceLogger

	now func() time.Time
}

// NewService wires the product service.
func NewService(repo Repository, logger logging.ServiceLogger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// CreateProduct validates and stores a new catalog entry.
func (s *Service) CreateProduct(ctx context.Context, name string, price float64, stock int) (*Product, error) {
	if err := rules.Validate(ctx,
		rules.New("product.name.required", "product name must not be empty", func(context.Context) (bool, error) {
			return name != "", nil
		}),
		rules.New("product.price.positive", "product price must be greater than zero", func(context.Context) (bool, error) {
			return price > 0, nil
		}),
		rules.New("product.stock.nonnegative", "initial stock must not be negative", func(context.Context) (bool, error) {
			return stock >= 0, nil
		}),
	); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	product := &Product{
		ID:        ids.CreateULID(),
		Name:      name,
		Price:     price,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Add(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// GetProduct looks up a product by id.
func (s *Service) GetProduct(ctx context.Context, id string) (*Product, bool, error) {
	return s.repo.Get(ctx, id)
}

// ListProducts returns the whole catalog in creation order.
func (s *Service) ListProducts(ctx context.Context) ([]*Product, error) {
	return s.repo.List(ctx)
}

// UpdatePrice changes the product price and appends the old price to the
// price history.
func (s *Service) UpdatePrice(ctx context.Context, id string, newPrice float64) (*Product, error) {
	if err := rules.Validate(ctx,
		rules.New("product.price.positive", "product price must be greater than zero", func(context.Context) (bool, error) {
			return newPrice > 0, nil
		}),
	); err != nil {
		return nil, err
	}

	product, found, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	product.PriceHistory = append(product.PriceHistory, PriceChange{
		OldPrice:  product.Price,
		NewPrice:  newPrice,
		ChangedAt: now,
	})
	product.Price = newPrice
	product.UpdatedAt = now

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateStock applies a stock delta. There is deliberately no lower-bound
// clamp; reservations can drive stock negative (see HandleStockReserve).
func (s *Service) UpdateStock(ctx context.Context, id string, delta int) (*Product, error) {
	product, found, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	product.Stock += delta
	product.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// HandleStockReserve decrements stock for every item of a reservation.
// There is no compensation path: a later payment failure does not restore
// stock, and a duplicate delivery decrements twice. Unknown products are
// logged and skipped so one bad line cannot wedge the queue.
func (s *Service) HandleStockReserve(ctx context.Context, evt events.StockReserve) error {
	if evt.OrderID == "" || len(evt.Items) == 0 {
		return errs.NewUnprocessableEvent(evt.OrderID, errors.New("stock.reserve event is missing orderId or items"))
	}

	for _, item := range evt.Items {
		product, err := s.UpdateStock(ctx, item.ProductID, -item.Quantity)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.logger.Error("Stock reservation for unknown product", err, logging.LogFields{
					"order_id":   evt.OrderID,
					"product_id": item.ProductID,
				})
				continue
			}
			return err
		}
		s.logger.Info("Reserved stock", logging.LogFields{
			"order_id":   evt.OrderID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"stock":      product.Stock,
		})
	}
	return nil
}
