package payment

import (
	"net/http"
	"time"

	"github.com/microshop/choreo/internal/httpapi"
)

// PaymentResponse is the JSON shape served for a payment lookup.
type PaymentResponse struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"orderId"`
	CustomerID  string     `json:"customerId"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

func toResponse(p *Payment) PaymentResponse {
	return PaymentResponse{
		ID:          p.ID,
		OrderID:     p.OrderID,
		CustomerID:  p.CustomerID,
		Amount:      p.Amount,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		ProcessedAt: p.ProcessedAt,
	}
}

// NewHTTPHandler exposes the payment lookup endpoints.
func NewHTTPHandler(svc *Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /payments", func(w http.ResponseWriter, r *http.Request) {
		payments, err := svc.ListPayments(r.Context())
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		responses := make([]PaymentResponse, 0, len(payments))
		for _, p := range payments {
			responses = append(responses, toResponse(p))
		}
		httpapi.WriteJSON(w, http.StatusOK, responses)
	})

	mux.HandleFunc("GET /payments/by-order/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		orderID := r.PathValue("orderId")

		payment, found, err := svc.GetByOrderID(r.Context(), orderID)
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		if !found {
			httpapi.WriteJSON(w, http.StatusNotFound, httpapi.ErrorResponse{
				Code:    "payment.not_found",
				Message: "no payment for order id " + orderID,
			})
			return
		}

		httpapi.WriteJSON(w, http.StatusOK, toResponse(payment))
	})

	return mux
}
