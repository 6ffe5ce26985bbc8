package clients

import (
	"context"
	"io"
	"net/http"

	"github.com/microshop/choreo/internal/eventbus/jsoncodec"
)

// ProductInfo is the subset of the product served by the product service
// that order validation needs.
type ProductInfo struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// ProductClient looks up products on the product service.
type ProductClient struct {
	tracedClient
	baseURL string
}

// NewProductClient creates a client for the product service at baseURL.
func NewProductClient(baseURL string) *ProductClient {
	return &ProductClient{
		tracedClient: newTracedClient(),
		baseURL:      trimBaseURL(baseURL),
	}
}

// Get fetches a product by id. The second return value reports whether the
// product exists.
func (c *ProductClient) Get(ctx context.Context, productID string) (*ProductInfo, bool, error) {
	url := c.baseURL + "/products/" + productID

	resp, err := c.get(ctx, "fetch-product", url)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		var info ProductInfo
		if err := jsoncodec.Unmarshal(body, &info); err != nil {
			return nil, false, err
		}
		return &info, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, unexpectedStatus(url, resp)
	}
}
