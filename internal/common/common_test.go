package common_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smartpay-gateway/internal/common"
)

func TestWriteErrorAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	err := common.NewAppError("MISSING_FIELDS", "missing required fields", http.StatusUnprocessableEntity, nil).
		WithDetails([]string{"notify_url"})
	common.WriteError(rr, err)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "MISSING_FIELDS", body.Error.Code)
	require.Equal(t, []any{"notify_url"}, body.Error.Details)
}

func TestWriteErrorHidesPlainErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("dial tcp: secret host"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "secret host")
}

func TestAppErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := common.NewAppError("X", "x", http.StatusBadRequest, base)
	require.ErrorIs(t, err, base)
	require.Equal(t, "boom", err.Error())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	require.Equal(t, "192.0.2.1", common.ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", common.ClientIP(req))
}

func TestSubject(t *testing.T) {
	_, ok := common.Subject(context.Background())
	require.False(t, ok)
	got, ok := common.Subject(common.WithSubject(context.Background(), "billing-svc"))
	require.True(t, ok)
	require.Equal(t, "billing-svc", got)
}

func TestSha256Hex(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", common.Sha256Hex(nil))
}

func TestText(t *testing.T) {
	rr := httptest.NewRecorder()
	common.Text(rr, http.StatusOK, "success")
	require.Equal(t, "success", rr.Body.String())
	require.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
}
