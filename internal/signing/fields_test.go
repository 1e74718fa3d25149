package signing_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smartpay-gateway/internal/signing"
)

func TestFieldsKeepInsertionOrder(t *testing.T) {
	f := signing.NewFields("z", "1", "a", "2")
	f.Set("m", "3")
	f.Set("z", "9")
	require.Equal(t, []string{"z", "a", "m"}, f.Keys())
	require.Equal(t, "9", f.Value("z"))
	require.Equal(t, 3, f.Len())

	f.Delete("a")
	f.Delete("missing")
	require.Equal(t, []string{"z", "m"}, f.Keys())
	require.False(t, f.Has("a"))
}

func TestFieldsMergePresetsWin(t *testing.T) {
	caller := signing.NewFields("amount", "100", "merchant_id", "spoofed", "nonce_str", "mine")
	presets := signing.NewFields("merchant_id", "M1", "service", "create_miniapp_pay", "nonce_str", "fresh")

	merged := caller.Merge(presets)
	require.Equal(t, []string{"amount", "merchant_id", "nonce_str", "service"}, merged.Keys())
	require.Equal(t, "M1", merged.Value("merchant_id"))
	require.Equal(t, "fresh", merged.Value("nonce_str"))

	require.Equal(t, "spoofed", caller.Value("merchant_id"), "merge must not mutate the receiver")
}

func TestFieldsCloneIsIndependent(t *testing.T) {
	f := signing.NewFields("a", "1")
	c := f.Clone()
	c.Set("a", "2")
	c.Set("b", "3")
	require.Equal(t, "1", f.Value("a"))
	require.False(t, f.Has("b"))
}

func TestFieldsWithoutReserved(t *testing.T) {
	f := signing.NewFields("a", "1", "signature", "x", "sign_type", "MD5")
	require.Equal(t, []string{"a"}, f.WithoutReserved().Keys())
	require.True(t, f.Has("signature"))
}

func TestFromValuesAndMap(t *testing.T) {
	v := url.Values{"b": {"2", "ignored"}, "a": {"1"}, "c": {}}
	f := signing.FromValues(v)
	require.Equal(t, []string{"a", "b", "c"}, f.Keys())
	require.Equal(t, "2", f.Value("b"))
	require.Equal(t, map[string]string{"a": "1", "b": "2", "c": ""}, f.Map())
}

func TestFormatHelpers(t *testing.T) {
	require.Equal(t, "1000000", signing.FormatInt(1000000))
	require.Equal(t, "-5", signing.FormatInt(-5))
	require.Equal(t, "1", signing.FormatBool(true))
	require.Equal(t, "", signing.FormatBool(false))
}

func TestFieldsCopiesShareEntries(t *testing.T) {
	a := signing.NewFields("x", "1")
	b := a
	b.Set("y", "2")
	require.True(t, a.Has("y"))
	require.Equal(t, []string{"x", "y"}, a.Keys())
	require.Equal(t, 2, a.Len())

	b.Delete("x")
	require.False(t, a.Has("x"))
	require.Equal(t, []string{"y"}, a.Keys())

	c := a.Clone()
	c.Set("z", "3")
	require.False(t, a.Has("z"))
	require.Equal(t, []string{"y"}, a.Keys())
}
