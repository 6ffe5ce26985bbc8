package clients

import (
	"context"
	"net/http"
)

// CustomerClient checks customer existence against the customer service.
type CustomerClient struct {
	tracedClient
	baseURL string
}

// NewCustomerClient creates a client for the customer service at baseURL.
func NewCustomerClient(baseURL string) *CustomerClient {
	return &CustomerClient{
		tracedClient: newTracedClient(),
		baseURL:      trimBaseURL(baseURL),
	}
}

// Exists reports whether a customer profile exists for the given customer id.
func (c *CustomerClient) Exists(ctx context.Context, customerID string) (bool, error) {
	url := c.baseURL + "/customers/" + customerID

	resp, err := c.get(ctx, "check-customer-exists", url)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpectedStatus(url, resp)
	}
}
