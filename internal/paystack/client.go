// Package paystack talks to the Paystack transaction API and adapts it to the
// payment contract used by checkout.
package paystack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/matcha-bar/internal/domain/payment"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.paystack.co"

// Config configures a Client.
type Config struct {
	SecretKey string
	BaseURL   string
	// CallbackURL is where the hosted page redirects after a charge.
	CallbackURL string
	// CancelURL is where the hosted page sends a customer who closes it. The
	// payment reference is appended as a query parameter.
	CancelURL string
	Timeout   time.Duration
}

// APIError is a non-2xx or status=false response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: %d: %s", e.StatusCode, e.Message)
}

// Client is a minimal Paystack REST client.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Client whose transport is traced and metered.
func NewClient(cfg Config, tp trace.TracerProvider, mp metric.MeterProvider) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			),
		},
	}
}

// Configured reports whether a secret key is set.
func (c *Client) Configured() bool {
	return c.cfg.SecretKey != ""
}

// Authorization is the result of initializing a transaction.
type Authorization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Initialize creates a transaction and returns the hosted checkout URL.
func (c *Client) Initialize(ctx context.Context, req payment.Request) (*Authorization, error) {
	body := encodeInitialize(req, c.cfg)

	var out Authorization
	err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "authorization_url":
				v, err := d.Str()
				out.AuthorizationURL = v
				return err
			case "access_code":
				v, err := d.Str()
				out.AccessCode = v
				return err
			case "reference":
				v, err := d.Str()
				out.Reference = v
				return err
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize transaction")
	}
	if out.AuthorizationURL == "" {
		return nil, errors.New("initialize transaction: empty authorization url")
	}
	return &out, nil
}

// Verify fetches the server-side record of a transaction.
func (c *Client) Verify(ctx context.Context, reference string) (*payment.Verification, error) {
	var v payment.Verification
	err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, func(d *jx.Decoder) error {
		return decodeTransaction(d, &v)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "verify %q", reference)
	}
	return &v, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, data func(d *jx.Decoder) error) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	var (
		status  bool
		message string
		gotData bool
	)
	d := jx.DecodeBytes(raw)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Bool()
			status = v
			return err
		case "message":
			v, err := d.Str()
			message = v
			return err
		case "data":
			if d.Next() != jx.Object || resp.StatusCode >= 300 {
				return d.Skip()
			}
			gotData = true
			return data(d)
		default:
			return d.Skip()
		}
	})
	if resp.StatusCode >= 300 || !status {
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	if err != nil {
		return errors.Wrap(err, "decode response")
	}
	if !gotData {
		return errors.New("response has no data")
	}
	return nil
}

func encodeInitialize(req payment.Request, cfg Config) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("email", func(e *jx.Encoder) { e.Str(req.Email) })
		// Paystack takes the amount as a string of minor units.
		e.Field("amount", func(e *jx.Encoder) { e.Str(fmt.Sprint(req.AmountMinor)) })
		e.Field("reference", func(e *jx.Encoder) { e.Str(req.Reference) })
		if req.Currency != "" {
			e.Field("currency", func(e *jx.Encoder) { e.Str(req.Currency) })
		}
		if cfg.CallbackURL != "" {
			e.Field("callback_url", func(e *jx.Encoder) { e.Str(cfg.CallbackURL) })
		}
		e.Field("metadata", func(e *jx.Encoder) {
			encodeMetadata(e, req.Metadata, cancelAction(cfg.CancelURL, req.Reference))
		})
	})
	return e.Bytes()
}

func encodeMetadata(e *jx.Encoder, m payment.Metadata, cancel string) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(m.OrderCode) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(m.Phone) })
		if cancel != "" {
			e.Field("cancel_action", func(e *jx.Encoder) { e.Str(cancel) })
		}
		e.Field("custom_fields", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, f := range m.Fields {
					e.Obj(func(e *jx.Encoder) {
						e.Field("display_name", func(e *jx.Encoder) { e.Str(f.DisplayName) })
						e.Field("variable_name", func(e *jx.Encoder) { e.Str(f.VariableName) })
						e.Field("value", func(e *jx.Encoder) { e.Str(f.Value) })
					})
				}
			})
		})
	})
}

func cancelAction(base, reference string) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "reference=" + reference
}

// decodeTransaction reads the transaction object shared by verify responses
// and webhook events.
func decodeTransaction(d *jx.Decoder, v *payment.Verification) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			n, err := d.Num()
			if err != nil {
				return err
			}
			v.TransactionID = strings.Trim(n.String(), `"`)
			return nil
		case "status":
			s, err := d.Str()
			v.Status = s
			return err
		case "reference":
			s, err := d.Str()
			v.Reference = s
			return err
		case "amount":
			n, err := d.Int64()
			v.AmountMinor = n
			return err
		case "currency":
			s, err := d.Str()
			v.Currency = s
			return err
		case "paid_at", "paidAt":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, s)
			if err == nil {
				v.PaidAt = t
			}
			return nil
		default:
			return d.Skip()
		}
	})
}
