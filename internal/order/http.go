package order

import (
	"net/http"
	"time"

	"github.com/microshop/choreo/internal/httpapi"
)

// CreateOrderRequest is the POST /orders command body.
type CreateOrderRequest struct {
	CustomerID string             `json:"customerId"`
	Items      []OrderItemRequest `json:"items"`
}

// OrderItemRequest is one requested line.
type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderItemResponse is one priced line of a served order.
type OrderItemResponse struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// OrderResponse is the JSON shape served for an order.
type OrderResponse struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customerId"`
	Items       []OrderItemResponse `json:"items"`
	TotalAmount float64             `json:"totalAmount"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func toResponse(ord *Order) OrderResponse {
	items := make([]OrderItemResponse, len(ord.Items))
	for i, item := range ord.Items {
		items[i] = OrderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return OrderResponse{
		ID:          ord.ID,
		CustomerID:  ord.CustomerID,
		Items:       items,
		TotalAmount: ord.TotalAmount,
		Status:      ord.Status,
		CreatedAt:   ord.CreatedAt,
		UpdatedAt:   ord.UpdatedAt,
	}
}

// NewHTTPHandler exposes the order command and lookup endpoints.
func NewHTTPHandler(svc *Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var req CreateOrderRequest
		if err := httpapi.ReadJSON(r, &req); err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, httpapi.ErrorResponse{
				Code:    "invalid_body",
				Message: err.Error(),
			})
			return
		}

		cmd := CreateOrderCommand{CustomerID: req.CustomerID}
		for _, item := range req.Items {
			cmd.Items = append(cmd.Items, ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		ord, err := svc.CreateOrder(r.Context(), cmd)
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusCreated, toResponse(ord))
	})

	mux.HandleFunc("GET /orders", func(w http.ResponseWriter, r *http.Request) {
		orders, err := svc.ListOrders(r.Context())
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		responses := make([]OrderResponse, 0, len(orders))
		for _, ord := range orders {
			responses = append(responses, toResponse(ord))
		}
		httpapi.WriteJSON(w, http.StatusOK, responses)
	})

	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		ord, found, err := svc.GetOrder(r.Context(), r.PathValue("id"))
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		if !found {
			httpapi.WriteJSON(w, http.StatusNotFound, httpapi.ErrorResponse{
				Code:    "order.not_found",
				Message: "no order with id " + r.PathValue("id"),
			})
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, toResponse(ord))
	})

	return mux
}
