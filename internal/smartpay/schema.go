package smartpay

import (
	"strings"

	"github.com/noah-isme/smartpay-gateway/internal/signing"
)

// FieldSpec declares the contract of one request field.
type FieldSpec struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Schema is the ordered field contract of an operation.
type Schema []FieldSpec

// Required lists required field names in schema order.
func (s Schema) Required() []string {
	out := make([]string, 0, len(s))
	for _, spec := range s {
		if spec.Required {
			out = append(out, spec.Name)
		}
	}
	return out
}

// Missing returns every required field absent from fields, in schema order.
// Presence is what counts; an empty value satisfies the requirement.
func (s Schema) Missing(fields signing.Fields) []string {
	var missing []string
	for _, spec := range s {
		if spec.Required && !fields.Has(spec.Name) {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// Operation binds a service code to its schema.
type Operation struct {
	Name    string `json:"name"`
	Service string `json:"service"`
	Schema  Schema `json:"fields"`
}

// Preset field names filled in by the client on every call.
const (
	FieldMerchantID = "merchant_id"
	FieldService    = "service"
	FieldNonce      = "nonce_str"
)

var (
	// MiniAppPay creates an aggregated mini-program payment.
	MiniAppPay = Operation{
		Name:    "miniapp_pay",
		Service: "create_miniapp_pay",
		Schema: Schema{
			{Name: FieldMerchantID, Required: true, Description: "merchant ID"},
			{Name: "increment_id", Required: true, Description: "merchant order number"},
			{Name: "sub_appid", Required: true, Description: "mini-program APPID"},
			{Name: "sub_openid", Required: true, Description: "payer openid within the mini-program"},
			{Name: "grandtotal", Required: true, Description: "order amount"},
			{Name: "currency", Required: true, Description: "currency code"},
			{Name: "valid_mins", Required: false, Description: "minutes the payment stays valid"},
			{Name: "payment_channels", Required: true, Description: "payment channels"},
			{Name: "notify_url", Required: true, Description: "asynchronous notification URL"},
			{Name: "subject", Required: false, Description: "transaction title"},
			{Name: "describe", Required: true, Description: "transaction description"},
			{Name: FieldNonce, Required: true, Description: "random string"},
			{Name: FieldService, Required: true, Description: "requested service"},
		},
	}

	// RedirectPay creates a payment completed on a hosted page, after which
	// the payer is sent to return_url.
	RedirectPay = Operation{
		Name:    "redirect_pay",
		Service: "create_redirect_pay",
		Schema: Schema{
			{Name: FieldMerchantID, Required: true, Description: "merchant ID"},
			{Name: "increment_id", Required: true, Description: "merchant order number"},
			{Name: "grandtotal", Required: true, Description: "order amount"},
			{Name: "currency", Required: true, Description: "currency code"},
			{Name: "valid_mins", Required: false, Description: "minutes the payment stays valid"},
			{Name: "payment_channels", Required: true, Description: "payment channels"},
			{Name: "notify_url", Required: true, Description: "asynchronous notification URL"},
			{Name: "return_url", Required: true, Description: "page the payer returns to"},
			{Name: "subject", Required: false, Description: "transaction title"},
			{Name: "describe", Required: true, Description: "transaction description"},
			{Name: FieldNonce, Required: true, Description: "random string"},
			{Name: FieldService, Required: true, Description: "requested service"},
		},
	}
)

// Operations lists the supported operations.
func Operations() []Operation {
	return []Operation{MiniAppPay, RedirectPay}
}

// LookupOperation finds an operation by name or service code.
func LookupOperation(name string) (Operation, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, op := range Operations() {
		if op.Name == key || op.Service == key {
			return op, true
		}
	}
	return Operation{}, false
}
