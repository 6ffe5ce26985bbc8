package product

import (
	"errors"
	"net/http"
	"time"

	"github.com/microshop/choreo/internal/httpapi"
)

// CreateProductRequest is the POST /products command body.
type CreateProductRequest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// UpdatePriceRequest is the PUT /products/{id}/price command body.
type UpdatePriceRequest struct {
	Price float64 `json:"price"`
}

// ProductResponse is the JSON shape served for a product. The order service
// reads price and stock from it during order validation.
type ProductResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PriceChangeResponse is one price history entry.
type PriceChangeResponse struct {
	OldPrice  float64   `json:"oldPrice"`
	NewPrice  float64   `json:"newPrice"`
	ChangedAt time.Time `json:"changedAt"`
}

func toResponse(p *Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// NewHTTPHandler exposes the catalog command and lookup endpoints.
func NewHTTPHandler(svc *Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /products", func(w http.ResponseWriter, r *http.Request) {
		var req CreateProductRequest
		if err := httpapi.ReadJSON(r, &req); err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, httpapi.ErrorResponse{
				Code:    "invalid_body",
				Message: err.Error(),
			})
			return
		}

		product, err := svc.CreateProduct(r.Context(), req.Name, req.Price, req.Stock)
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusCreated, toResponse(product))
	})

	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		products, err := svc.ListProducts(r.Context())
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		responses := make([]ProductResponse, 0, len(products))
		for _, p := range products {
			responses = append(responses, toResponse(p))
		}
		httpapi.WriteJSON(w, http.StatusOK, responses)
	})

	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		product, found, err := svc.GetProduct(r.Context(), r.PathValue("id"))
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		if !found {
			httpapi.WriteJSON(w, http.StatusNotFound, httpapi.ErrorResponse{
				Code:    "product.not_found",
				Message: "no product with id " + r.PathValue("id"),
			})
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, toResponse(product))
	})

	mux.HandleFunc("PUT /products/{id}/price", func(w http.ResponseWriter, r *http.Request) {
		var req UpdatePriceRequest
		if err := httpapi.ReadJSON(r, &req); err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, httpapi.ErrorResponse{
				Code:    "invalid_body",
				Message: err.Error(),
			})
			return
		}

		product, err := svc.UpdatePrice(r.Context(), r.PathValue("id"), req.Price)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				httpapi.WriteJSON(w, http.StatusNotFound, httpapi.ErrorResponse{
					Code:    "product.not_found",
					Message: err.Error(),
				})
				return
			}
			httpapi.WriteError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, toResponse(product))
	})

	mux.HandleFunc("GET /products/{id}/price-history", func(w http.ResponseWriter, r *http.Request) {
		product, found, err := svc.GetProduct(r.Context(), r.PathValue("id"))
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		if !found {
			httpapi.WriteJSON(w, http.StatusNotFound, httpapi.ErrorResponse{
				Code:    "product.not_found",
				Message: "no product with id " + r.PathValue("id"),
			})
			return
		}

		history := make([]PriceChangeResponse, 0, len(product.PriceHistory))
		for _, change := range product.PriceHistory {
			history = append(history, PriceChangeResponse{
				OldPrice:  change.OldPrice,
				NewPrice:  change.NewPrice,
				ChangedAt: change.ChangedAt,
			})
		}
		httpapi.WriteJSON(w, http.StatusOK, history)
	})

	return mux
}
