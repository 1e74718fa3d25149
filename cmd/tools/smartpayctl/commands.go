package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/noah-isme/smartpay-gateway/internal/auth"
	"github.com/noah-isme/smartpay-gateway/internal/nonce"
	"github.com/noah-isme/smartpay-gateway/internal/obs"
	"github.com/noah-isme/smartpay-gateway/internal/signing"
	"github.com/noah-isme/smartpay-gateway/internal/smartpay"
)

type rootOptions struct {
	SignKey  string
	LogLevel string
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "smartpayctl",
		Short:        "Sign, verify and send SmartPay requests.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.SignKey, "key", os.Getenv("SMARTPAY_SIGN_KEY"), "merchant sign key (default $SMARTPAY_SIGN_KEY)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level for request audit logs")

	cmd.AddCommand(newSignCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newNonceCmd())
	cmd.AddCommand(newCallCmd(opts))
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func (o *rootOptions) key() (string, error) {
	if o.SignKey == "" {
		return "", errors.New("sign key required: pass --key or set SMARTPAY_SIGN_KEY")
	}
	return o.SignKey, nil
}

func newSignCmd(opts *rootOptions) *cobra.Command {
	var withQuery bool
	cmd := &cobra.Command{
		Use:   "sign key=value...",
		Short: "Print the signature for a set of fields.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := opts.key()
			if err != nil {
				return err
			}
			fields, err := parseFieldArgs(args)
			if err != nil {
				return err
			}
			sig := signing.Sign(fields, key)
			out := cmd.OutOrStdout()
			if withQuery {
				_, err = fmt.Fprintln(out, smartpay.EncodeQuery(fields, sig))
				return err
			}
			_, err = fmt.Fprintln(out, sig)
			return err
		},
	}
	cmd.Flags().BoolVar(&withQuery, "query", false, "print the full signed query string instead")
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify key=value... signature=<hex>",
		Short: "Check the signature carried by a set of fields.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := opts.key()
			if err != nil {
				return err
			}
			fields, err := parseFieldArgs(args)
			if err != nil {
				return err
			}
			if err := (signing.Verifier{Key: key}).VerifyDetailed(fields); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return err
		},
	}
}

func newNonceCmd() *cobra.Command {
	var (
		length   int
		alphabet string
	)
	cmd := &cobra.Command{
		Use:   "nonce",
		Short: "Print a random string.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := nonce.Generator{}.Generate(length, alphabet)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
			return err
		},
	}
	cmd.Flags().IntVar(&length, "length", nonce.Length, "number of characters")
	cmd.Flags().StringVar(&alphabet, "alphabet", nonce.DefaultAlphabet, "characters to draw from")
	return cmd
}

type callOutput struct {
	Outcome   string         `json:"outcome"`
	Service   string         `json:"service"`
	RequestID string         `json:"requestId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Missing   []string       `json:"missing,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func newCallCmd(opts *rootOptions) *cobra.Command {
	var (
		merchantID string
		apiURL     string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <operation> key=value...",
		Short: "Send a signed request and print the classified result.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := opts.key()
			if err != nil {
				return err
			}
			op, ok := smartpay.LookupOperation(args[0])
			if !ok {
				return fmt.Errorf("unknown operation %q", args[0])
			}
			fields, err := parseFieldArgs(args[1:])
			if err != nil {
				return err
			}
			client, err := smartpay.New(smartpay.Config{
				Credentials: smartpay.Credentials{MerchantID: merchantID, SignKey: key},
				APIURL:      apiURL,
				Transport:   smartpay.NewHTTPTransport(&http.Client{}, nil, timeout),
				Logger:      obs.NewLoggerTo(cmd.ErrOrStderr(), "console", opts.LogLevel),
			})
			if err != nil {
				return err
			}

			res := client.Do(cmd.Context(), op, fields)
			out := callOutput{
				Outcome:   res.Outcome.String(),
				Service:   res.Service,
				RequestID: res.RequestID,
				Payload:   res.Payload,
				Missing:   res.Missing,
				Code:      res.Code,
				Message:   res.Message,
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			return res.AsError()
		},
	}
	cmd.Flags().StringVar(&merchantID, "merchant", os.Getenv("SMARTPAY_MERCHANT_ID"), "merchant id (default $SMARTPAY_MERCHANT_ID)")
	cmd.Flags().StringVar(&apiURL, "url", smartpay.DefaultAPIURL, "SmartPay endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		secret   string
		subject  string
		issuer   string
		audience string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a service token for the gateway API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := auth.NewTokens(auth.TokensConfig{Secret: secret, Issuer: issuer, Audience: audience})
			if err != nil {
				return err
			}
			tok, err := tokens.Issue(subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("GATEWAY_JWT_SECRET"), "signing secret (default $GATEWAY_JWT_SECRET)")
	cmd.Flags().StringVar(&subject, "subject", "", "calling service name")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("GATEWAY_JWT_ISSUER"), "token issuer")
	cmd.Flags().StringVar(&audience, "audience", os.Getenv("GATEWAY_JWT_AUDIENCE"), "token audience")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// parseFieldArgs reads key=value arguments in order. Only the first '='
// separates key from value.
func parseFieldArgs(args []string) (signing.Fields, error) {
	var fields signing.Fields
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return signing.Fields{}, fmt.Errorf("invalid field %q: want key=value", arg)
		}
		fields.Set(key, value)
	}
	return fields, nil
}
