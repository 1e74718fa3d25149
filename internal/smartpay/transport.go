package smartpay

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/smartpay-gateway/internal/resilience"
)

// Request is one outbound GET.
type Request struct {
	URL       string
	Query     string
	RequestID string
}

// Response is a buffered reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport sends a request and returns the buffered response. Implementations
// must not retry.
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// StatusError reports a non-2xx reply.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPTransport sends requests over HTTP with a single attempt per call.
type HTTPTransport struct {
	HTTP resilience.HTTPClient
}

// NewHTTPTransport wraps client (a zero http.Client when nil) with
// OpenTelemetry instrumentation, the given breaker and a per-call timeout.
func NewHTTPTransport(client *http.Client, breaker *resilience.Breaker, timeout time.Duration) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	instrumented := *client
	instrumented.Transport = otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "smartpay " + r.Method
		}),
	)
	return &HTTPTransport{HTTP: resilience.HTTPClient{
		Client:  &instrumented,
		Breaker: breaker,
		Timeout: timeout,
	}}
}

// Send issues GET URL?Query. Non-2xx replies return the response together with
// a *StatusError.
func (t *HTTPTransport) Send(ctx context.Context, req Request) (Response, error) {
	target := req.URL
	if req.Query != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}
	resp, err := t.HTTP.Do(ctx, httpReq)
	if err != nil {
		return Response{}, err
	}
	out := Response{StatusCode: resp.StatusCode, Body: resp.Body}
	if !successStatus(resp.StatusCode) {
		return out, &StatusError{StatusCode: resp.StatusCode}
	}
	return out, nil
}

func successStatus(code int) bool {
	return code >= 200 && code < 300
}
