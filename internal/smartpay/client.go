package smartpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/smartpay-gateway/internal/nonce"
	"github.com/noah-isme/smartpay-gateway/internal/obs"
	"github.com/noah-isme/smartpay-gateway/internal/signing"
)

// DefaultAPIURL is the production SmartPay endpoint.
const DefaultAPIURL = "https://www.kiwifast.com/api/v1/info/smartpay"

// Credentials identify the merchant. SignKey is signing material only and is
// never transmitted.
type Credentials struct {
	MerchantID string
	SignKey    string
}

// String masks the sign key.
func (c Credentials) String() string {
	return fmt.Sprintf("merchant_id=%s sign_key=%s", c.MerchantID, mask(c.SignKey))
}

func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

// Config configures a Client.
type Config struct {
	Credentials Credentials
	// APIURL defaults to DefaultAPIURL.
	APIURL    string
	Transport Transport
	// Nonce defaults to a 16 character token from the package nonce.
	Nonce  func() string
	Logger zerolog.Logger
}

// Client executes SmartPay operations. It holds no mutable state and is safe
// for concurrent use.
type Client struct {
	creds     Credentials
	apiURL    string
	transport Transport
	builder   Builder
	verifier  signing.Verifier
	nonce     func() string
	logger    zerolog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Credentials.MerchantID) == "" {
		return nil, errors.New("smartpay: merchant id is required")
	}
	if cfg.Credentials.SignKey == "" {
		return nil, errors.New("smartpay: sign key is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("smartpay: transport is required")
	}
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	gen := cfg.Nonce
	if gen == nil {
		gen = nonce.New
	}
	return &Client{
		creds:     cfg.Credentials,
		apiURL:    apiURL,
		transport: cfg.Transport,
		builder:   Builder{Key: cfg.Credentials.SignKey},
		verifier:  signing.Verifier{Key: cfg.Credentials.SignKey},
		nonce:     gen,
		logger:    cfg.Logger,
	}, nil
}

// Credentials returns the credentials the client signs with.
func (c *Client) Credentials() Credentials {
	return c.creds
}

// CreateMiniAppPay creates a mini-program payment.
func (c *Client) CreateMiniAppPay(ctx context.Context, input signing.Fields) Result {
	return c.Do(ctx, MiniAppPay, input)
}

// CreateRedirectPay creates a hosted-page payment.
func (c *Client) CreateRedirectPay(ctx context.Context, input signing.Fields) Result {
	return c.Do(ctx, RedirectPay, input)
}

// Verify reports whether fields received from SmartPay carry a valid signature.
func (c *Client) Verify(fields signing.Fields) bool {
	return c.verifier.Verify(fields)
}

// Do runs op: presets, build, send, decode, classify. It never retries.
func (c *Client) Do(ctx context.Context, op Operation, input signing.Fields) (res Result) {
	ctx, span := otel.Tracer("smartpay.Client").Start(ctx, "SmartPay."+op.Service)
	defer span.End()

	start := time.Now()
	requestID := uuid.NewString()
	logger := obs.LoggerFrom(ctx, c.logger).With().
		Str("service", op.Service).
		Str("smartpay_request_id", requestID).
		Logger()
	defer func() {
		res.Service = op.Service
		res.RequestID = requestID
		outcome := res.Outcome.String()
		span.SetAttributes(
			attribute.String("smartpay.service", op.Service),
			attribute.String("smartpay.request_id", requestID),
			attribute.String("smartpay.outcome", outcome),
		)
		if res.Outcome == TransportError || res.Outcome == MalformedResponse {
			span.SetStatus(codes.Error, outcome)
			if res.Err != nil {
				span.RecordError(res.Err)
			}
		}
		if obs.SmartPayRequestTotal != nil {
			obs.SmartPayRequestTotal.WithLabelValues(op.Service, outcome).Inc()
		}
		if obs.SmartPayRequestDuration != nil {
			obs.SmartPayRequestDuration.WithLabelValues(op.Service).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	presets := signing.NewFields(
		FieldMerchantID, c.creds.MerchantID,
		FieldService, op.Service,
		FieldNonce, c.nonce(),
	)
	signed, err := c.builder.Build(op.Schema, input, presets)
	if err != nil {
		var missing *MissingFieldsError
		if errors.As(err, &missing) {
			logger.Warn().Strs("missing", missing.Fields).Msg("smartpay_validation_failed")
			return Result{Outcome: ValidationError, Missing: missing.Fields, Err: err}
		}
		return Result{Outcome: ValidationError, Err: err}
	}
	logger.Info().Str("query", signed.Query).Msg("smartpay_request")

	resp, err := c.transport.Send(ctx, Request{URL: c.apiURL, Query: signed.Query, RequestID: requestID})
	if err == nil && !successStatus(resp.StatusCode) {
		err = &StatusError{StatusCode: resp.StatusCode}
	}
	if err != nil {
		logger.Error().Err(err).Int("status", resp.StatusCode).Msg("smartpay_transport_failed")
		return Result{Outcome: TransportError, Raw: resp.Body, Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	payload, err := decodeObject(resp.Body)
	if err != nil {
		logger.Error().Err(err).Bytes("body", truncate(resp.Body, 512)).Msg("smartpay_malformed_response")
		return Result{Outcome: MalformedResponse, Raw: resp.Body, Err: err}
	}
	logger.Info().Interface("response", payload).Msg("smartpay_response")

	code, ok := payload["code"].(json.Number)
	if ok {
		if n, convErr := code.Int64(); convErr == nil && n == 0 {
			return Result{Outcome: Success, Payload: payload, Raw: resp.Body}
		}
	}
	return Result{
		Outcome: Rejected,
		Payload: payload,
		Raw:     resp.Body,
		Code:    literal(payload["code"]),
		Message: literal(payload["message"]),
	}
}

// decodeObject decodes body as a single JSON object, keeping numbers exact.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", value)
	}
	return obj, nil
}

func literal(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
