package smartpay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smartpay-gateway/internal/obs"
	"github.com/noah-isme/smartpay-gateway/internal/signing"
	"github.com/noah-isme/smartpay-gateway/internal/smartpay"
)

func init() {
	obs.MustRegisterDomainMetrics("smartpay", prometheus.NewRegistry())
}

type recordingTransport struct {
	mu       sync.Mutex
	requests []smartpay.Request
	status   int
	body     string
	err      error
}

func (t *recordingTransport) Send(ctx context.Context, req smartpay.Request) (smartpay.Response, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()
	if t.err != nil {
		return smartpay.Response{}, t.err
	}
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	return smartpay.Response{StatusCode: status, Body: []byte(t.body)}, nil
}

func (t *recordingTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func newClient(t *testing.T, transport smartpay.Transport, logger zerolog.Logger) *smartpay.Client {
	t.Helper()
	client, err := smartpay.New(smartpay.Config{
		Credentials: smartpay.Credentials{MerchantID: "M1", SignKey: "S"},
		APIURL:      "https://smartpay.test/api",
		Transport:   transport,
		Nonce:       func() string { return "abc123" },
		Logger:      logger,
	})
	require.NoError(t, err)
	return client
}

func miniAppInput() signing.Fields {
	return signing.NewFields(
		"increment_id", "INV-1",
		"sub_appid", "wx1",
		"sub_openid", "o-1",
		"grandtotal", "9.90",
		"currency", "CNY",
		"payment_channels", "WECHATPAY",
		"notify_url", "https://shop.example/notify",
		"describe", "milk tea",
	)
}

func TestCreateMiniAppPaySuccess(t *testing.T) {
	transport := &recordingTransport{body: `{"code":0,"foo":"bar"}`}
	client := newClient(t, transport, zerolog.Nop())

	res := client.CreateMiniAppPay(context.Background(), miniAppInput())

	require.Equal(t, smartpay.Success, res.Outcome)
	require.True(t, res.OK())
	require.NoError(t, res.AsError())
	require.Equal(t, map[string]any{"code": json.Number("0"), "foo": "bar"}, res.Payload)
	require.Equal(t, "create_miniapp_pay", res.Service)
	require.NotEmpty(t, res.RequestID)

	require.Equal(t, 1, transport.calls())
	sent := transport.requests[0]
	require.Equal(t, "https://smartpay.test/api", sent.URL)
	require.Equal(t, res.RequestID, sent.RequestID)
	require.Equal(t,
		"increment_id=INV-1&sub_appid=wx1&sub_openid=o-1&grandtotal=9.90&currency=CNY&payment_channels=WECHATPAY"+
			"&notify_url=https%3A%2F%2Fshop.example%2Fnotify&describe=milk+tea"+
			"&merchant_id=M1&service=create_miniapp_pay&nonce_str=abc123"+
			"&signature=8b132de7c60965ca1870a4f6f24749ea&sign_type=MD5",
		sent.Query)
}

func TestDoTransportStatusFailureIsNotRetried(t *testing.T) {
	transport := &recordingTransport{status: http.StatusInternalServerError, body: `{"code":0}`}
	client := newClient(t, transport, zerolog.Nop())

	res := client.CreateMiniAppPay(context.Background(), miniAppInput())

	require.Equal(t, smartpay.TransportError, res.Outcome)
	require.Equal(t, 1, transport.calls())
	var statusErr *smartpay.StatusError
	require.ErrorAs(t, res.Err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	var failure *smartpay.TransportFailure
	require.ErrorAs(t, res.AsError(), &failure)
	require.ErrorAs(t, failure, &statusErr)
}

func TestDoConnectionError(t *testing.T) {
	boom := errors.New("connection refused")
	transport := &recordingTransport{err: boom}
	client := newClient(t, transport, zerolog.Nop())

	res := client.CreateRedirectPay(context.Background(), signing.NewFields(
		"increment_id", "INV-2", "grandtotal", "1", "currency", "USD", "payment_channels", "ALIPAY",
		"notify_url", "https://n", "return_url", "https://r", "describe", "d",
	))
	require.Equal(t, smartpay.TransportError, res.Outcome)
	require.ErrorIs(t, res.AsError(), boom)
	require.Equal(t, 1, transport.calls())
	require.Contains(t, transport.requests[0].Query, "service=create_redirect_pay")
}

func TestDoRejected(t *testing.T) {
	transport := &recordingTransport{body: `{"code":7,"message":"insufficient balance"}`}
	client := newClient(t, transport, zerolog.Nop())

	res := client.CreateMiniAppPay(context.Background(), miniAppInput())

	require.Equal(t, smartpay.Rejected, res.Outcome)
	require.Equal(t, "insufficient balance", res.Message)
	require.Equal(t, "7", res.Code)
	require.Equal(t, json.Number("7"), res.Payload["code"])
	require.JSONEq(t, `{"code":7,"message":"insufficient balance"}`, string(res.Raw))

	var rejected *smartpay.RejectedError
	require.ErrorAs(t, res.AsError(), &rejected)
	require.Equal(t, "smartpay: create_miniapp_pay rejected (code 7): insufficient balance", rejected.Error())
}

func TestDoCodeMustBeNumericZero(t *testing.T) {
	cases := map[string]string{
		"missing code": `{"message":"?"}`,
		"string zero":  `{"code":"0"}`,
		"float zero":   `{"code":0.0}`,
		"null code":    `{"code":null}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, &recordingTransport{body: body}, zerolog.Nop())
			res := client.CreateMiniAppPay(context.Background(), miniAppInput())
			require.Equal(t, smartpay.Rejected, res.Outcome)
		})
	}
}

func TestDoMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"not json":      `<html>bad gateway</html>`,
		"array":         `[{"code":0}]`,
		"null":          `null`,
		"number":        `0`,
		"empty":         ``,
		"trailing data": `{"code":0} {"code":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, &recordingTransport{body: body}, zerolog.Nop())
			res := client.CreateMiniAppPay(context.Background(), miniAppInput())
			require.Equal(t, smartpay.MalformedResponse, res.Outcome)
			require.ErrorIs(t, res.AsError(), smartpay.ErrMalformedResponse)
		})
	}
}

func TestDoValidationErrorSkipsNetwork(t *testing.T) {
	transport := &recordingTransport{body: `{"code":0}`}
	client := newClient(t, transport, zerolog.Nop())

	input := miniAppInput()
	input.Delete("notify_url")
	input.Delete("sub_openid")
	res := client.CreateMiniAppPay(context.Background(), input)

	require.Equal(t, smartpay.ValidationError, res.Outcome)
	require.Equal(t, []string{"sub_openid", "notify_url"}, res.Missing)
	require.Zero(t, transport.calls())

	var missing *smartpay.MissingFieldsError
	require.ErrorAs(t, res.AsError(), &missing)
	require.Equal(t, res.Missing, missing.Fields)
}

func TestDoUsesFreshNoncePerCall(t *testing.T) {
	transport := &recordingTransport{body: `{"code":0}`}
	client, err := smartpay.New(smartpay.Config{
		Credentials: smartpay.Credentials{MerchantID: "M1", SignKey: "S"},
		Transport:   transport,
	})
	require.NoError(t, err)

	client.CreateMiniAppPay(context.Background(), miniAppInput())
	client.CreateMiniAppPay(context.Background(), miniAppInput())

	require.Equal(t, 2, transport.calls())
	require.Equal(t, smartpay.DefaultAPIURL, transport.requests[0].URL)
	nonces := make([]string, 0, 2)
	for _, req := range transport.requests {
		for _, pair := range strings.Split(req.Query, "&") {
			if v, ok := strings.CutPrefix(pair, "nonce_str="); ok {
				require.Len(t, v, 16)
				nonces = append(nonces, v)
			}
		}
	}
	require.Len(t, nonces, 2)
	require.NotEqual(t, nonces[0], nonces[1])
}

func TestDoAuditLogsNeverContainSignKey(t *testing.T) {
	var buf bytes.Buffer
	transport := &recordingTransport{body: `{"code":0,"pay_url":"https://pay"}`}
	client, err := smartpay.New(smartpay.Config{
		Credentials: smartpay.Credentials{MerchantID: "M1", SignKey: "super-secret-key"},
		Transport:   transport,
		Nonce:       func() string { return "n" },
		Logger:      zerolog.New(&buf),
	})
	require.NoError(t, err)

	client.CreateMiniAppPay(context.Background(), miniAppInput())

	logs := buf.String()
	require.Contains(t, logs, `"message":"smartpay_request"`)
	require.Contains(t, logs, `"message":"smartpay_response"`)
	require.Contains(t, logs, "sign_type=MD5")
	require.NotContains(t, logs, "super-secret-key")
}

func TestDoRecordsOutcomeMetric(t *testing.T) {
	counter := obs.SmartPayRequestTotal.WithLabelValues("create_miniapp_pay", "rejected")
	before := testutil.ToFloat64(counter)

	client := newClient(t, &recordingTransport{body: `{"code":3}`}, zerolog.Nop())
	client.CreateMiniAppPay(context.Background(), miniAppInput())

	require.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestVerifyNotification(t *testing.T) {
	client := newClient(t, &recordingTransport{}, zerolog.Nop())

	fields := signing.NewFields("increment_id", "INV-1", "status", "paid", "grandtotal", "9.90")
	fields.Set(signing.KeySignature, signing.Sign(fields, "S"))
	fields.Set(signing.KeySignType, signing.SignTypeMD5)
	require.True(t, client.Verify(fields))

	fields.Set("grandtotal", "0.01")
	require.False(t, client.Verify(fields))
}

func TestNewValidatesConfig(t *testing.T) {
	transport := &recordingTransport{}
	_, err := smartpay.New(smartpay.Config{Credentials: smartpay.Credentials{SignKey: "S"}, Transport: transport})
	require.Error(t, err)
	_, err = smartpay.New(smartpay.Config{Credentials: smartpay.Credentials{MerchantID: "M1"}, Transport: transport})
	require.Error(t, err)
	_, err = smartpay.New(smartpay.Config{Credentials: smartpay.Credentials{MerchantID: "M1", SignKey: "S"}})
	require.Error(t, err)
}

func TestCredentialsStringMasksKey(t *testing.T) {
	creds := smartpay.Credentials{MerchantID: "M1", SignKey: "abcdefgh"}
	require.Equal(t, "merchant_id=M1 sign_key=ab****gh", creds.String())
	require.NotContains(t, smartpay.Credentials{MerchantID: "M1", SignKey: "abc"}.String(), "abc")
}

func TestClientIsSafeForConcurrentUse(t *testing.T) {
	transport := &recordingTransport{body: `{"code":0}`}
	client := newClient(t, transport, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := client.CreateMiniAppPay(context.Background(), miniAppInput())
			assert.Equal(t, smartpay.Success, res.Outcome)
		}()
	}
	wg.Wait()
	require.Equal(t, 16, transport.calls())
}
