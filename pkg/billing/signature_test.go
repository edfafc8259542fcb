package billing

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

const testSecret = "whsec_test"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	now := time.Unix(1_700_000_000, 0)
	valid := SignHeader(payload, now, testSecret)
	ts := strconv.FormatInt(now.Unix(), 10)

	tests := []struct {
		name      string
		payload   []byte
		header    string
		secret    string
		tolerance time.Duration
		now       time.Time
		wantKind  apperr.Kind
		wantOK    bool
	}{
		{name: "valid", payload: payload, header: valid, secret: testSecret, tolerance: DefaultTolerance, now: now, wantOK: true},
		{name: "valid within tolerance", payload: payload, header: valid, secret: testSecret, tolerance: DefaultTolerance, now: now.Add(4 * time.Minute), wantOK: true},
		{name: "tampered body", payload: []byte(`{"id":"evt_1","type":"customer.subscription.deleted"}`), header: valid, secret: testSecret, tolerance: DefaultTolerance, now: now, wantKind: apperr.KindInvalidSignature},
		{name: "wrong secret", payload: payload, header: valid, secret: "whsec_other", tolerance: DefaultTolerance, now: now, wantKind: apperr.KindInvalidSignature},
		{name: "stale timestamp", payload: payload, header: valid, secret: testSecret, tolerance: DefaultTolerance, now: now.Add(6 * time.Minute), wantKind: apperr.KindInvalidSignature},
		{name: "stale timestamp without tolerance", payload: payload, header: valid, secret: testSecret, now: now.Add(48 * time.Hour), wantOK: true},
		{name: "missing header", payload: payload, header: "", secret: testSecret, now: now, wantKind: apperr.KindInvalidSignature},
		{name: "missing timestamp", payload: payload, header: "v1=" + ComputeSignature(payload, now.Unix(), testSecret), secret: testSecret, now: now, wantKind: apperr.KindInvalidSignature},
		{name: "malformed timestamp", payload: payload, header: "t=abc,v1=00", secret: testSecret, now: now, wantKind: apperr.KindInvalidSignature},
		{name: "no v1", payload: payload, header: "t=" + ts + ",v0=" + ComputeSignature(payload, now.Unix(), testSecret), secret: testSecret, now: now, wantKind: apperr.KindInvalidSignature},
		{name: "one of several v1 matches", payload: payload, header: "t=" + ts + ",v1=deadbeef,v1=" + ComputeSignature(payload, now.Unix(), testSecret), secret: testSecret, tolerance: DefaultTolerance, now: now, wantOK: true},
		{name: "secret not configured", payload: payload, header: valid, secret: "", now: now, wantKind: apperr.KindMisconfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.payload, tt.header, tt.secret, tt.tolerance, tt.now)
			if tt.wantOK {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestComputeSignature_CoversTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	assert.NotEqual(t, ComputeSignature(payload, 1, testSecret), ComputeSignature(payload, 2, testSecret))
	assert.Len(t, ComputeSignature(payload, 1, testSecret), 64)
}
