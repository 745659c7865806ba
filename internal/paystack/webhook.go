package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/matcha-bar/internal/domain/payment"
)

// SignatureHeader carries the HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "X-Paystack-Signature"

// EventChargeSuccess is sent when a charge settles.
const EventChargeSuccess = "charge.success"

// ErrBadSignature is returned for a webhook body that does not match its
// signature.
var ErrBadSignature = errors.New("invalid webhook signature")

// Event is a decoded webhook notification.
type Event struct {
	Name        string
	Transaction payment.Verification
}

// Sign returns the hex HMAC-SHA512 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against body.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrBadSignature
	}
	want := Sign(secret, body)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event":
			s, err := d.Str()
			ev.Name = s
			return err
		case "data":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return decodeTransaction(d, &ev.Transaction)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode event")
	}
	if ev.Name == "" {
		return nil, errors.New("event name missing")
	}
	return &ev, nil
}
