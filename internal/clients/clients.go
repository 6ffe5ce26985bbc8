// Package clients provides the HTTP clients used for cross-service
// existence checks during command validation. Every request carries the
// caller's trace context so the check shows up as a client span in the
// order's trace.
package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "choreo-http-client"

func newHTTPClient() *http.Client {
	// No client-wide timeout; requests are bounded by the caller's context.
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
}

type tracedClient struct {
	tracer trace.Tracer
	http   *http.Client
}

func newTracedClient() tracedClient {
	return tracedClient{
		tracer: otel.Tracer(tracerName),
		http:   newHTTPClient(),
	}
}

func (c tracedClient) get(ctx context.Context, spanName, url string) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", http.MethodGet),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func trimBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}

func unexpectedStatus(url string, resp *http.Response) error {
	return fmt.Errorf("choreo: %s returned unexpected status %s", url, resp.Status)
}
