package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/smartpay-gateway/internal/common"
	"github.com/noah-isme/smartpay-gateway/internal/obs"
	"github.com/noah-isme/smartpay-gateway/internal/signing"
	"github.com/noah-isme/smartpay-gateway/internal/smartpay"
)

// DefaultMaxBodyBytes bounds request bodies when MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 64 << 10

// Payments runs SmartPay operations. *smartpay.Client satisfies it.
type Payments interface {
	Do(ctx context.Context, op smartpay.Operation, input signing.Fields) smartpay.Result
}

// Handler exposes the SmartPay operations over HTTP.
type Handler struct {
	Payments     Payments
	MaxBodyBytes int64
	Logger       zerolog.Logger
}

var validate = validator.New()

type createResp struct {
	Service   string         `json:"service"`
	RequestID string         `json:"requestId"`
	Payload   map[string]any `json:"payload"`
}

type operationResp struct {
	Name     string               `json:"name"`
	Service  string               `json:"service"`
	Fields   []smartpay.FieldSpec `json:"fields"`
	Required []string             `json:"required"`
}

// Routes mounts the payment endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/operations", h.Operations)
	r.Post("/{operation}", h.Create)
}

// Operations lists every supported operation with its field contract.
func (h *Handler) Operations(w http.ResponseWriter, _ *http.Request) {
	ops := smartpay.Operations()
	out := make([]operationResp, 0, len(ops))
	for _, op := range ops {
		out = append(out, operationResp{
			Name:     op.Name,
			Service:  op.Service,
			Fields:   op.Schema,
			Required: op.Schema.Required(),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"operations": out})
}

// Create runs the operation named in the path with the flat JSON object in
// the body as caller fields.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Payments == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "operation"))
	if err := validate.Var(name, "required,max=64,printascii"); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid operation", nil)
		return
	}
	op, ok := smartpay.LookupOperation(name)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "OPERATION_NOT_FOUND", "unknown operation", nil)
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	fields, err := signing.ParseJSONObject(body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "body must be a flat JSON object", nil)
		return
	}

	logger := obs.LoggerFrom(r.Context(), h.Logger)
	if subject, ok := common.Subject(r.Context()); ok {
		logger = logger.With().Str("subject", subject).Logger()
	}

	res := h.Payments.Do(r.Context(), op, fields)
	switch res.Outcome {
	case smartpay.Success:
		common.JSON(w, http.StatusOK, createResp{Service: res.Service, RequestID: res.RequestID, Payload: res.Payload})
	case smartpay.ValidationError:
		common.JSONError(w, http.StatusUnprocessableEntity, "MISSING_FIELDS", "required fields are missing", res.Missing)
	case smartpay.Rejected:
		logger.Warn().Str("service", res.Service).Str("code", res.Code).Msg("payment_rejected")
		message := res.Message
		if message == "" {
			message = "payment rejected"
		}
		common.JSONError(w, http.StatusBadRequest, "PAYMENT_REJECTED", message, res.Payload)
	case smartpay.MalformedResponse:
		logger.Error().Err(res.Err).Str("service", res.Service).Msg("payment_upstream_malformed")
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_MALFORMED", "unexpected response from payment provider", nil)
	default:
		logger.Error().Err(res.Err).Str("service", res.Service).Msg("payment_upstream_unavailable")
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "payment provider unavailable", nil)
	}
}
