package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the age of a signed timestamp
const DefaultTolerance = 5 * time.Minute

// ComputeSignature returns hex(HMAC-SHA256(secret, "{t}.{payload}"))
func ComputeSignature(payload []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a header value for payload signed at t
func SignHeader(payload []byte, t time.Time, secret string) string {
	ts := t.Unix()
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + ComputeSignature(payload, ts, secret)
}

// VerifySignature checks header "t=<unix>,v1=<hex>[,v1=<hex>...]" against
// payload. A zero tolerance disables the timestamp age check.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return apperr.Misconfigured("STRIPE_WEBHOOK_SECRET")
	}
	if header == "" {
		return apperr.InvalidSignature("missing " + SignatureHeader + " header")
	}

	var timestamp int64 = -1
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return apperr.InvalidSignature("malformed timestamp")
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if timestamp < 0 {
		return apperr.InvalidSignature("missing timestamp")
	}
	if len(signatures) == 0 {
		return apperr.InvalidSignature("no v1 signature")
	}

	if tolerance > 0 && now.Sub(time.Unix(timestamp, 0)) > tolerance {
		return apperr.InvalidSignature("timestamp outside tolerance")
	}

	expected, _ := hex.DecodeString(ComputeSignature(payload, timestamp, secret))
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return apperr.InvalidSignature("signature mismatch")
}
