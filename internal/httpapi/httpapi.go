// Package httpapi carries the small helpers shared by the services' thin
// HTTP command endpoints: JSON request decoding, response encoding, and the
// mapping from business-rule violations to problem responses.
package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/microshop/choreo/internal/eventbus/jsoncodec"
	"github.com/microshop/choreo/internal/rules"
)

// ErrorResponse is the JSON body returned for rejected or failed commands.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReadJSON decodes the request body into v.
func ReadJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return jsoncodec.Unmarshal(body, v)
}

// WriteJSON encodes v as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	payload, err := jsoncodec.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// WriteError maps an error to a problem response. Business-rule violations
// become 422s carrying their stable code; everything else is a 500.
func WriteError(w http.ResponseWriter, err error) {
	var violation *rules.Violation
	if errors.As(err, &violation) {
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Code:    violation.RuleCode,
			Message: violation.RuleMessage,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Code:    "internal_error",
		Message: err.Error(),
	})
}
