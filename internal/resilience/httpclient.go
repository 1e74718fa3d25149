package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/noah-isme/smartpay-gateway/internal/obs"
)

// DefaultMaxBody caps how much of an upstream response is buffered.
const DefaultMaxBody = 4 << 20

// Response is a fully buffered upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPClient performs single-attempt calls bounded by a timeout and guarded
// by a circuit breaker. It never retries.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
	MaxBody int64
}

// Do sends req and buffers the body before the call deadline is released.
// Transport errors and 5xx responses count as breaker failures.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (Response, error) {
	if cl.Client == nil {
		return Response{}, errors.New("resilience: http client not configured")
	}
	target := "default"
	if cl.Breaker != nil {
		target = cl.Breaker.cfg.Target
		if !cl.Breaker.Allow(ctx) {
			observe(target, "open", 0)
			return Response{}, ErrOpenCircuit
		}
	}

	callCtx, cancel := cl.callContext(ctx)
	defer cancel()

	start := time.Now()
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		if ctx.Err() != nil {
			cl.release()
			observe(target, "canceled", time.Since(start))
			return Response{}, err
		}
		cl.report(ctx, false)
		observe(target, "error", time.Since(start))
		return Response{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	maxBody := cl.MaxBody
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		if ctx.Err() != nil {
			cl.release()
			observe(target, "canceled", time.Since(start))
			return Response{}, fmt.Errorf("resilience: read body: %w", err)
		}
		cl.report(ctx, false)
		observe(target, "error", time.Since(start))
		return Response{}, fmt.Errorf("resilience: read body: %w", err)
	}
	if int64(len(body)) > maxBody {
		cl.report(ctx, false)
		observe(target, "error", time.Since(start))
		return Response{}, fmt.Errorf("resilience: response body exceeds %d bytes", maxBody)
	}

	healthy := resp.StatusCode < http.StatusInternalServerError
	cl.report(ctx, healthy)
	result := "ok"
	if !healthy {
		result = "5xx"
	}
	observe(target, result, time.Since(start))
	return Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (cl HTTPClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (cl HTTPClient) release() {
	if cl.Breaker != nil {
		cl.Breaker.Release()
	}
}

func (cl HTTPClient) report(ctx context.Context, success bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, success)
	}
}

func observe(target, result string, d time.Duration) {
	if UpstreamDuration == nil {
		return
	}
	UpstreamDuration.WithLabelValues(target, result).Observe(obs.DurationMillis(d))
}
