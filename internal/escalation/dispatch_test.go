package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

func sampleCall() CallContext {
	return NewCallContext(frictionLead(), policy.StrategySocialProof, policy.Evaluation{Score: 4.567, ConversionProbability: 0.4}, 2)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"+14155552671", "+14155552671", true},
		{"  +442071838750 ", "+442071838750", true},
		{"+12345678", "+12345678", true},
		{"+1234567", "", false},
		{"+1234567890123456", "", false},
		{"14155552671", "", false},
		{"+1 415 555 2671", "", false},
		{"+1-415-555-2671", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw)
			if !tt.ok {
				assert.True(t, errors.Is(err, ErrInvalidPhone))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallContext_Map(t *testing.T) {
	m := sampleCall().Map()
	assert.Equal(t, "lead-7", m["lead_id"])
	assert.Equal(t, "trust", m["objection"])
	assert.Equal(t, "skeptical", m["sentiment"])
	assert.Equal(t, "social_proof", m["strategy"])
	assert.Equal(t, "4.57", m["score"])
	assert.Equal(t, "sms", m["channel"])
	assert.Equal(t, "2", m["round"])
}

func TestHTTPDispatcher_Accepted(t *testing.T) {
	var got callRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"call-123","status":"queued"}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{Endpoint: srv.URL, APIKey: "secret", FromNumber: "+15550000000"})
	res := d.PlaceCall(context.Background(), " +5511999998888", sampleCall())

	assert.True(t, res.Accepted)
	assert.Equal(t, "queued", res.Status)
	assert.Equal(t, "call-123", res.CallID)
	assert.Equal(t, "+5511999998888", got.To)
	assert.Equal(t, "+15550000000", got.From)
	assert.Equal(t, "lead-7", got.Metadata["lead_id"])
}

func TestHTTPDispatcher_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"number blocked"}`))
	}))
	defer srv.Close()

	res := NewHTTPDispatcher(HTTPConfig{Endpoint: srv.URL}).PlaceCall(context.Background(), "+5511999998888", sampleCall())
	assert.False(t, res.Accepted)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Contains(t, res.Error, "number blocked")
}

func TestHTTPDispatcher_UnreadableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<html><body>ok</body></html>`))
	}))
	defer srv.Close()

	res := NewHTTPDispatcher(HTTPConfig{Endpoint: srv.URL}).PlaceCall(context.Background(), "+5511999998888", sampleCall())
	assert.True(t, res.Accepted)
	assert.Equal(t, StatusUnconfirmed, res.Status)
	assert.Empty(t, res.CallID)
	assert.Contains(t, res.Error, "decode provider response")
}

func TestHTTPDispatcher_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewHTTPDispatcher(HTTPConfig{Endpoint: url}).PlaceCall(context.Background(), "+5511999998888", sampleCall())
	assert.False(t, res.Accepted)
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestHTTPDispatcher_InvalidPhoneSkipsNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	res := NewHTTPDispatcher(HTTPConfig{Endpoint: srv.URL}).PlaceCall(context.Background(), "555-0100", sampleCall())
	assert.False(t, res.Accepted)
	assert.Equal(t, StatusInvalidPhone, res.Status)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestDryRunDispatcher(t *testing.T) {
	d := NewDryRunDispatcher(nil)

	ok := d.PlaceCall(context.Background(), "+5511999998888", sampleCall())
	assert.True(t, ok.Accepted)
	assert.Equal(t, StatusDryRun, ok.Status)

	bad := d.PlaceCall(context.Background(), "+12", sampleCall())
	assert.False(t, bad.Accepted)
	assert.Equal(t, StatusInvalidPhone, bad.Status)
}
