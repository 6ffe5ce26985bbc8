// Package events defines the wire contracts shared by every service: the
// JSON event payloads, the routing keys they are published under, and the
// routing-key → exchange taxonomy. Routing keys are a stable inter-service
// API; changing one is a breaking change for every consumer bound to it.
package events

import "time"

// Routing keys. Consumers bind queues on exact matches.
const (
	KeyUserRegistered   = "user.registered"
	KeyOrderCreated     = "order.created"
	KeyStockReserve     = "stock.reserve"
	KeyPaymentCompleted = "payment.completed"
	KeyPaymentFailed    = "payment.failed"
)

// Topic exchanges. Each producing service owns one durable topic exchange.
const (
	IdentityExchange = "identity_exchange"
	OrderExchange    = "order_exchange"
	PaymentExchange  = "payment_exchange"
)

var exchangeByKey = map[string]string{
	KeyUserRegistered:   IdentityExchange,
	KeyOrderCreated:     OrderExchange,
	KeyStockReserve:     OrderExchange,
	KeyPaymentCompleted: PaymentExchange,
	KeyPaymentFailed:    PaymentExchange,
}

// ExchangeForKey maps a routing key to the topic exchange it is published on.
// Unknown keys (for example the poison queue) fall back to their own name so
// the transport can still declare a home for them.
func ExchangeForKey(routingKey string) string {
	if exchange, ok := exchangeByKey[routingKey]; ok {
		return exchange
	}
	return routingKey
}

// Queue names, one durable queue per consuming service and routing key.
const (
	QueueCustomerUserRegistered = "customer.user-registered"
	QueuePaymentOrderCreated    = "payment.order-created"
	QueueProductStockReserve    = "product.stock-reserve"
	QueueOrderPaymentResult     = "order.payment-result"
)

// UserRegistered is emitted by the identity service after a credential is
// persisted. The customer service provisions a profile from it.
type UserRegistered struct {
	Email        string    `json:"email"`
	CustomerID   string    `json:"customerId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// OrderItemRef identifies one line of an order inside an event payload.
type OrderItemRef struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderCreated is the order-summary event consumed by the payment service.
type OrderCreated struct {
	OrderID     string         `json:"orderId"`
	CustomerID  string         `json:"customerId"`
	TotalAmount float64        `json:"totalAmount"`
	Items       []OrderItemRef `json:"items"`
}

// StockReserve is derived from the same order as OrderCreated (they share
// OrderID) and is consumed by the product service.
type StockReserve struct {
	OrderID string         `json:"orderId"`
	Items   []OrderItemRef `json:"items"`
}

// Payment result statuses as they appear on the wire.
const (
	PaymentStatusCompleted = "Completed"
	PaymentStatusFailed    = "Failed"
)

// PaymentResult is emitted by the payment service under payment.completed or
// payment.failed and drives the order-status update.
type PaymentResult struct {
	PaymentID string  `json:"paymentId"`
	OrderID   string  `json:"orderId"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
}
