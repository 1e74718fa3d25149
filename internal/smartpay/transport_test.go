package smartpay_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smartpay-gateway/internal/resilience"
	"github.com/noah-isme/smartpay-gateway/internal/smartpay"
)

func TestHTTPTransportSendsSignedGET(t *testing.T) {
	var gotQuery, gotMethod, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"prepay_id":"wx123"}`))
	}))
	defer srv.Close()

	transport := smartpay.NewHTTPTransport(srv.Client(), nil, time.Second)
	client, err := smartpay.New(smartpay.Config{
		Credentials: smartpay.Credentials{MerchantID: "M1", SignKey: "S"},
		APIURL:      srv.URL + "/api/v1/info/smartpay",
		Transport:   transport,
		Nonce:       func() string { return "abc123" },
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	res := client.CreateMiniAppPay(context.Background(), miniAppInput())
	require.Equal(t, smartpay.Success, res.Outcome)
	require.Equal(t, "wx123", res.Payload["prepay_id"])
	require.Equal(t, http.MethodGet, gotMethod)
	require.Equal(t, res.RequestID, gotRequestID)
	require.Contains(t, gotQuery, "&signature=8b132de7c60965ca1870a4f6f24749ea&sign_type=MD5")
}

func TestHTTPTransportNon2xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	transport := smartpay.NewHTTPTransport(srv.Client(), nil, time.Second)
	resp, err := transport.Send(context.Background(), smartpay.Request{URL: srv.URL, Query: "a=1"})

	var statusErr *smartpay.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, int32(1), hits.Load())
}

func TestHTTPTransportAppendsToExistingQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	transport := smartpay.NewHTTPTransport(srv.Client(), nil, time.Second)
	_, err := transport.Send(context.Background(), smartpay.Request{URL: srv.URL + "?lang=en", Query: "a=1"})
	require.NoError(t, err)
	require.Equal(t, "lang=en&a=1", gotQuery)
}

func TestHTTPTransportTimeoutIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := smartpay.New(smartpay.Config{
		Credentials: smartpay.Credentials{MerchantID: "M1", SignKey: "S"},
		APIURL:      srv.URL,
		Transport:   smartpay.NewHTTPTransport(srv.Client(), nil, 20*time.Millisecond),
	})
	require.NoError(t, err)

	res := client.CreateMiniAppPay(context.Background(), miniAppInput())
	require.Equal(t, smartpay.TransportError, res.Outcome)
}

func TestHTTPTransportOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "smartpay", MinRequests: 1, OpenFor: time.Hour})
	transport := smartpay.NewHTTPTransport(srv.Client(), breaker, time.Second)

	_, err := transport.Send(context.Background(), smartpay.Request{URL: srv.URL})
	require.Error(t, err)
	_, err = transport.Send(context.Background(), smartpay.Request{URL: srv.URL})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
}
