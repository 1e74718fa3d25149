package notify

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/smartpay-gateway/internal/common"
	"github.com/noah-isme/smartpay-gateway/internal/obs"
	"github.com/noah-isme/smartpay-gateway/internal/signing"
)

// Ack is the literal body SmartPay expects after a notification was accepted.
const Ack = "success"

// DefaultMaxBodyBytes bounds notification bodies when MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 64 << 10

var errUnsupportedBody = errors.New("notify: unsupported body")

// Handler receives SmartPay notifications, verifies their signature, drops
// redeliveries and dispatches the rest.
type Handler struct {
	Verifier     signing.Verifier
	Replay       ReplayGuard
	ReplayTTL    time.Duration
	MaxBodyBytes int64
	Dispatcher   Dispatcher
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Handle processes one callback.
func (h Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("notify.Handler").Start(r.Context(), "SmartPayNotification.Handle")
	defer span.End()
	logger := obs.LoggerFrom(ctx, h.Logger)

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("notification.result", result))
		if obs.NotificationTotal != nil {
			obs.NotificationTotal.WithLabelValues(result).Inc()
		}
	}()

	if h.Dispatcher == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOTIFY_NOT_CONFIGURED", "notification receiver unavailable", nil)
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
			result = "too_large"
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "notification body too large", nil)
			return
		}
		result = "invalid_body"
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	fields, err := parseBody(r.Header.Get("Content-Type"), body)
	if err != nil {
		result = "invalid_body"
		logger.Warn().Err(err).Msg("smartpay_notification_unparseable")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "notification body must be a flat form or JSON object", nil)
		return
	}

	if err := h.Verifier.VerifyDetailed(fields); err != nil {
		result = "invalid_signature"
		logger.Warn().Err(err).Str("increment_id", fields.Value("increment_id")).Msg("smartpay_notification_rejected")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	key := common.Sha256Hex(body)
	if h.Replay != nil && h.ReplayTTL > 0 {
		claimed, err := h.Replay.Claim(ctx, key, h.ReplayTTL)
		if err != nil {
			logger.Error().Err(err).Msg("smartpay_notification_replay_store")
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "unable to record notification", nil)
			return
		}
		if !claimed {
			result = "duplicate"
			common.Text(w, http.StatusOK, Ack)
			return
		}
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	n := NewNotification(body, fields, now())
	span.SetAttributes(attribute.String("notification.id", n.ID))
	if err := h.Dispatcher.Dispatch(ctx, n); err != nil {
		if h.Replay != nil && h.ReplayTTL > 0 {
			if relErr := h.Replay.Release(ctx, key); relErr != nil {
				logger.Error().Err(relErr).Msg("smartpay_notification_replay_release")
			}
		}
		span.RecordError(err)
		logger.Error().Err(err).Str("notification_id", n.ID).Msg("smartpay_notification_dispatch_failed")
		common.JSONError(w, http.StatusInternalServerError, "DISPATCH_FAILED", "notification not accepted", nil)
		return
	}

	result = "accepted"
	logger.Info().Str("notification_id", n.ID).Str("increment_id", fields.Value("increment_id")).Msg("smartpay_notification_accepted")
	common.Text(w, http.StatusOK, Ack)
}

// parseBody accepts urlencoded forms and flat JSON objects. Without a usable
// content type the body shape decides.
func parseBody(contentType string, body []byte) (signing.Fields, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/json":
		return signing.ParseJSONObject(body)
	case "application/x-www-form-urlencoded":
		return parseForm(body)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return signing.ParseJSONObject(trimmed)
	}
	return parseForm(body)
}

func parseForm(body []byte) (signing.Fields, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return signing.Fields{}, err
	}
	if len(values) == 0 {
		return signing.Fields{}, errUnsupportedBody
	}
	return signing.FromValues(values), nil
}
