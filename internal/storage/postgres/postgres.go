// Package postgres implements the domain repositories on PostgreSQL via
// pgx. Each service owns its own tables; EnsureSchema creates the ones the
// connecting service needs.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/microshop/choreo/internal/customer"
	"github.com/microshop/choreo/internal/identity"
	"github.com/microshop/choreo/internal/order"
	"github.com/microshop/choreo/internal/payment"
	"github.com/microshop/choreo/internal/product"
)

const uniqueViolation = "23505"

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates all tables if they do not exist yet. It is safe to
// run on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS customer_profiles (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			stock INTEGER NOT NULL,
			price_history JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			items JSONB NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// UserRepository implements identity.Repository.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Add(ctx context.Context, user *identity.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, customer_id, created_at)
		 VALUES ($1, LOWER($2), $3, $4, $5)`,
		user.ID, user.Email, user.PasswordHash, user.CustomerID, user.CreatedAt)
	if isUniqueViolation(err) {
		return identity.ErrEmailTaken
	}
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, bool, error) {
	var user identity.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, customer_id, created_at
		 FROM users WHERE email = LOWER($1)`, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CustomerID, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

// ProfileRepository implements customer.Repository.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) Add(ctx context.Context, profile *customer.Profile) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO customer_profiles (id, customer_id, name, email, phone, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		profile.ID, profile.CustomerID, profile.Name, profile.Email, profile.Phone, profile.Status, profile.CreatedAt)
	if isUniqueViolation(err) {
		return customer.ErrDuplicate
	}
	return err
}

func (r *ProfileRepository) GetByCustomerID(ctx context.Context, customerID string) (*customer.Profile, bool, error) {
	var profile customer.Profile
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, name, email, phone, status, created_at
		 FROM customer_profiles WHERE customer_id = $1`, customerID).
		Scan(&profile.ID, &profile.CustomerID, &profile.Name, &profile.Email, &profile.Phone, &profile.Status, &profile.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &profile, true, nil
}

// ProductRepository implements product.Repository. The price history rides
// along as a jsonb column; it is only ever read and written as a whole.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) Add(ctx context.Context, p *product.Product) error {
	history, err := sonic.Marshal(p.PriceHistory)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO products (id, name, price, stock, price_history, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Price, p.Stock, history, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*product.Product, bool, error) {
	var p product.Product
	var history []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price, stock, price_history, created_at, updated_at
		 FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &history, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := sonic.Unmarshal(history, &p.PriceHistory); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*product.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price, stock, price_history, created_at, updated_at
		 FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*product.Product
	for rows.Next() {
		var p product.Product
		var history []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &history, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := sonic.Unmarshal(history, &p.PriceHistory); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	history, err := sonic.Marshal(p.PriceHistory)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $2, price = $3, stock = $4, price_history = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.Price, p.Stock, history, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// OrderRepository implements order.Repository.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

type orderItemRow struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

func marshalItems(items []order.Item) ([]byte, error) {
	rows := make([]orderItemRow, len(items))
	for i, item := range items {
		rows[i] = orderItemRow{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}
	return sonic.Marshal(rows)
}

func unmarshalItems(raw []byte) ([]order.Item, error) {
	var rows []orderItemRow
	if err := sonic.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	items := make([]order.Item, len(rows))
	for i, row := range rows {
		items[i] = order.Item{ProductID: row.ProductID, Quantity: row.Quantity, UnitPrice: row.UnitPrice}
	}
	return items, nil
}

func (r *OrderRepository) Add(ctx context.Context, ord *order.Order) error {
	items, err := marshalItems(ord.Items)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO orders (id, customer_id, items, total_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ord.ID, ord.CustomerID, items, ord.TotalAmount, ord.Status, ord.CreatedAt, ord.UpdatedAt)
	return err
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, bool, error) {
	var ord order.Order
	var items []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, items, total_amount, status, created_at, updated_at
		 FROM orders WHERE id = $1`, id).
		Scan(&ord.ID, &ord.CustomerID, &items, &ord.TotalAmount, &ord.Status, &ord.CreatedAt, &ord.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if ord.Items, err = unmarshalItems(items); err != nil {
		return nil, false, err
	}
	return &ord, true, nil
}

func (r *OrderRepository) List(ctx context.Context) ([]*order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_id, items, total_amount, status, created_at, updated_at
		 FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		var ord order.Order
		var items []byte
		if err := rows.Scan(&ord.ID, &ord.CustomerID, &items, &ord.TotalAmount, &ord.Status, &ord.CreatedAt, &ord.UpdatedAt); err != nil {
			return nil, err
		}
		if ord.Items, err = unmarshalItems(items); err != nil {
			return nil, err
		}
		orders = append(orders, &ord)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) Update(ctx context.Context, ord *order.Order) error {
	items, err := marshalItems(ord.Items)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE orders SET customer_id = $2, items = $3, total_amount = $4, status = $5, updated_at = $6
		 WHERE id = $1`,
		ord.ID, ord.CustomerID, items, ord.TotalAmount, ord.Status, ord.UpdatedAt)
	return err
}

// PaymentRepository implements payment.Repository. The unique constraint on
// order_id backs the one-payment-per-order invariant.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Add(ctx context.Context, p *payment.Payment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payments (id, order_id, customer_id, amount, status, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OrderID, p.CustomerID, p.Amount, p.Status, p.CreatedAt, p.ProcessedAt)
	return err
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, bool, error) {
	var p payment.Payment
	var processedAt *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_id, customer_id, amount, status, created_at, processed_at
		 FROM payments WHERE order_id = $1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.Amount, &p.Status, &p.CreatedAt, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	p.ProcessedAt = processedAt
	return &p, true, nil
}

func (r *PaymentRepository) List(ctx context.Context) ([]*payment.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, customer_id, amount, status, created_at, processed_at
		 FROM payments ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.Amount, &p.Status, &p.CreatedAt, &p.ProcessedAt); err != nil {
			return nil, err
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, processed_at = $3 WHERE order_id = $1`,
		p.OrderID, p.Status, p.ProcessedAt)
	return err
}
