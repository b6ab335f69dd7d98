package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedCallback = errors.New("malformed callback")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrMissingSecret     = errors.New("hmac secret not configured")
)

// signedFields is Paymob's transaction callback HMAC order. The provider dictates it.
var signedFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// Callback is a parsed transaction callback. Raw keeps the exact bytes received.
type Callback struct {
	Raw            json.RawMessage
	GatewayOrderID string
	Success        bool
	ErrorOccured   bool
	Pending        bool
	signed         string
}

// ParseCallback decodes the raw body without re-encoding it and extracts the signed fields.
func ParseCallback(raw []byte) (*Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	obj, ok := payload["obj"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing transaction object", ErrMalformedCallback)
	}

	orderID, ok := lookup(obj, "order.id")
	if !ok || orderID == nil {
		return nil, fmt.Errorf("%w: missing order id", ErrMalformedCallback)
	}
	gatewayOrderID, ok := stringify(orderID)
	if !ok || gatewayOrderID == "" {
		return nil, fmt.Errorf("%w: invalid order id", ErrMalformedCallback)
	}

	var sb strings.Builder
	for _, field := range signedFields {
		v, ok := lookup(obj, field)
		if !ok {
			return nil, fmt.Errorf("%w: missing field %s", ErrMalformedCallback, field)
		}
		s, ok := stringify(v)
		if !ok {
			return nil, fmt.Errorf("%w: field %s is not a scalar", ErrMalformedCallback, field)
		}
		sb.WriteString(s)
	}

	cb := &Callback{
		Raw:            append(json.RawMessage(nil), raw...),
		GatewayOrderID: gatewayOrderID,
		signed:         sb.String(),
	}
	cb.Success, _ = obj["success"].(bool)
	cb.ErrorOccured, _ = obj["error_occured"].(bool)
	cb.Pending, _ = obj["pending"].(bool)
	return cb, nil
}

func lookup(obj map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = obj
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// stringify renders a scalar the way the provider does when it builds the HMAC string.
func stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "null", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		f, err := t.Float64()
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// Verifier checks callback signatures against the shared HMAC secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the lowercase hex HMAC-SHA512 of the callback's signed fields.
func (v *Verifier) Sign(cb *Callback) string {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write([]byte(cb.signed))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *Verifier) Verify(cb *Callback, signature string) error {
	if len(v.secret) == 0 {
		return ErrMissingSecret
	}
	got := strings.ToLower(strings.TrimSpace(signature))
	if !hmac.Equal([]byte(v.Sign(cb)), []byte(got)) {
		return ErrSignatureMismatch
	}
	return nil
}
