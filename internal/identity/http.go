package identity

import (
	"errors"
	"net/http"

	"github.com/microshop/choreo/internal/httpapi"
)

// RegisterRequest is the POST /register command body.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse echoes the created account.
type RegisterResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	CustomerID string `json:"customerId"`
}

// NewHTTPHandler exposes the registration command endpoint.
func NewHTTPHandler(svc *Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := httpapi.ReadJSON(r, &req); err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, httpapi.ErrorResponse{
				Code:    "invalid_body",
				Message: err.Error(),
			})
			return
		}

		user, err := svc.RegisterUser(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrEmailTaken) {
				httpapi.WriteJSON(w, http.StatusConflict, httpapi.ErrorResponse{
					Code:    "identity.email.unique",
					Message: err.Error(),
				})
				return
			}
			httpapi.WriteError(w, err)
			return
		}

		httpapi.WriteJSON(w, http.StatusCreated, RegisterResponse{
			ID:         user.ID,
			Email:      user.Email,
			CustomerID: user.CustomerID,
		})
	})

	return mux
}
