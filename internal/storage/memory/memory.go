// Package memory provides mutex-guarded in-memory implementations of the
// domain repositories. They back the services in local development and in
// tests; production deployments use the postgres package instead.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/microshop/choreo/internal/customer"
	"github.com/microshop/choreo/internal/identity"
	"github.com/microshop/choreo/internal/order"
	"github.com/microshop/choreo/internal/payment"
	"github.com/microshop/choreo/internal/product"
)

// UserStore implements identity.Repository. Email lookups are
// case-insensitive.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*identity.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*identity.User)}
}

func (s *UserStore) Add(_ context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *user
	s.users[strings.ToLower(user.Email)] = &clone
	return nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*identity.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, false, nil
	}
	clone := *user
	return &clone, true, nil
}

// ProfileStore implements customer.Repository.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*customer.Profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*customer.Profile)}
}

func (s *ProfileStore) Add(_ context.Context, profile *customer.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.CustomerID]; ok {
		return customer.ErrDuplicate
	}
	clone := *profile
	s.profiles[profile.CustomerID] = &clone
	return nil
}

func (s *ProfileStore) GetByCustomerID(_ context.Context, customerID string) (*customer.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[customerID]
	if !ok {
		return nil, false, nil
	}
	clone := *profile
	return &clone, true, nil
}

// ProductStore implements product.Repository.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]*product.Product
}

func NewProductStore() *ProductStore {
	return &ProductStore{products: make(map[string]*product.Product)}
}

func cloneProduct(p *product.Product) *product.Product {
	clone := *p
	clone.PriceHistory = append([]product.PriceChange(nil), p.PriceHistory...)
	return &clone
}

func (s *ProductStore) Add(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = cloneProduct(p)
	return nil
}

func (s *ProductStore) Get(_ context.Context, id string) (*product.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, false, nil
	}
	return cloneProduct(p), true, nil
}

// List returns the catalog sorted by id; ids are ULIDs, so this is creation
// order.
func (s *ProductStore) List(_ context.Context) ([]*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := make([]*product.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *ProductStore) Update(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return product.ErrNotFound
	}
	s.products[p.ID] = cloneProduct(p)
	return nil
}

// OrderStore implements order.Repository.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*order.Order)}
}

func cloneOrder(ord *order.Order) *order.Order {
	clone := *ord
	clone.Items = append([]order.Item(nil), ord.Items...)
	return &clone
}

func (s *OrderStore) Add(_ context.Context, ord *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[ord.ID] = cloneOrder(ord)
	return nil
}

func (s *OrderStore) Get(_ context.Context, id string) (*order.Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ord, ok := s.orders[id]
	if !ok {
		return nil, false, nil
	}
	return cloneOrder(ord), true, nil
}

// List returns all orders sorted by id, which is creation order for ULIDs.
func (s *OrderStore) List(_ context.Context) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := make([]*order.Order, 0, len(s.orders))
	for _, ord := range s.orders {
		orders = append(orders, cloneOrder(ord))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (s *OrderStore) Update(_ context.Context, ord *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[ord.ID] = cloneOrder(ord)
	return nil
}

// PaymentStore implements payment.Repository, keyed by order id.
type PaymentStore struct {
	mu       sync.RWMutex
	payments map[string]*payment.Payment
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{payments: make(map[string]*payment.Payment)}
}

func clonePayment(p *payment.Payment) *payment.Payment {
	clone := *p
	if p.ProcessedAt != nil {
		processedAt := *p.ProcessedAt
		clone.ProcessedAt = &processedAt
	}
	return &clone
}

func (s *PaymentStore) Add(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.OrderID] = clonePayment(p)
	return nil
}

func (s *PaymentStore) GetByOrderID(_ context.Context, orderID string) (*payment.Payment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[orderID]
	if !ok {
		return nil, false, nil
	}
	return clonePayment(p), true, nil
}

// List returns all payments sorted by payment id, which is creation order
// for ULIDs.
func (s *PaymentStore) List(_ context.Context) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payments := make([]*payment.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		payments = append(payments, clonePayment(p))
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID < payments[j].ID })
	return payments, nil
}

func (s *PaymentStore) Update(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.OrderID] = clonePayment(p)
	return nil
}
