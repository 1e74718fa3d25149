package smartpay_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smartpay-gateway/internal/smartpay"
)

func TestLookupOperation(t *testing.T) {
	op, ok := smartpay.LookupOperation("miniapp_pay")
	require.True(t, ok)
	require.Equal(t, "create_miniapp_pay", op.Service)

	op, ok = smartpay.LookupOperation(" CREATE_REDIRECT_PAY ")
	require.True(t, ok)
	require.Equal(t, smartpay.RedirectPay.Name, op.Name)

	_, ok = smartpay.LookupOperation("refund")
	require.False(t, ok)
}

func TestOperationSchemas(t *testing.T) {
	require.Equal(t, []string{
		"merchant_id", "increment_id", "sub_appid", "sub_openid", "grandtotal", "currency",
		"payment_channels", "notify_url", "describe", "nonce_str", "service",
	}, smartpay.MiniAppPay.Schema.Required())

	redirect := smartpay.RedirectPay.Schema.Required()
	require.Contains(t, redirect, "return_url")
	require.NotContains(t, redirect, "sub_appid")
	require.NotContains(t, redirect, "sub_openid")

	for _, op := range smartpay.Operations() {
		for _, preset := range []string{smartpay.FieldMerchantID, smartpay.FieldService, smartpay.FieldNonce} {
			require.Contains(t, op.Schema.Required(), preset, op.Name)
		}
	}
}
