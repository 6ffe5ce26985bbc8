package customer

import (
	"net/http"
	"time"

	"github.com/microshop/choreo/internal/httpapi"
)

// ProfileResponse is the JSON shape served for a profile lookup. The order
// service uses this endpoint for its customer-exists rule.
type ProfileResponse struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewHTTPHandler exposes the profile lookup endpoint.
func NewHTTPHandler(svc *Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /customers/{customerId}", func(w http.ResponseWriter, r *http.Request) {
		customerID := r.PathValue("customerId")

		profile, found, err := svc.GetProfile(r.Context(), customerID)
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		if !found {
			httpapi.WriteJSON(w, http.StatusNotFound, httpapi.ErrorResponse{
				Code:    "customer.not_found",
				Message: "no profile for customer id " + customerID,
			})
			return
		}

		httpapi.WriteJSON(w, http.StatusOK, ProfileResponse{
			ID:         profile.ID,
			CustomerID: profile.CustomerID,
			Name:       profile.Name,
			Email:      profile.Email,
			Phone:      profile.Phone,
			Status:     profile.Status,
			CreatedAt:  profile.CreatedAt,
		})
	})

	return mux
}
