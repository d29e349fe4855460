package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSigner_SignAndVerify(t *testing.T) {
	s := NewHMACSigner("gateway-secret")
	body := []byte(`{"payload":"eyJjcmVkaXRfaWQiOiJjLTEifQ=="}`)

	sig := s.Sign("POST", "/v1/transactions", 1735689600, "n-1", body)

	assert.Regexp(t, `^[0-9a-f]{64}$`, sig)
	assert.True(t, s.Verify("POST", "/v1/transactions", 1735689600, "n-1", body, sig))
	assert.Equal(t, sig, s.Sign("POST", "/v1/transactions", 1735689600, "n-1", body))
}

func TestHMACSigner_VerifyRejectsTampering(t *testing.T) {
	s := NewHMACSigner("gateway-secret")
	body := []byte(`{"payload":"AAEC"}`)
	sig := s.Sign("POST", "/v1/transactions", 100, "n-1", body)

	tests := []struct {
		name      string
		signer    *HMACSigner
		method    string
		path      string
		timestamp int64
		nonce     string
		body      []byte
		sig       string
	}{
		{"wrong secret", NewHMACSigner("other"), "POST", "/v1/transactions", 100, "n-1", body, sig},
		{"wrong method", s, "GET", "/v1/transactions", 100, "n-1", body, sig},
		{"wrong path", s, "POST", "/v1/transactions/x", 100, "n-1", body, sig},
		{"replayed timestamp", s, "POST", "/v1/transactions", 101, "n-1", body, sig},
		{"other nonce", s, "POST", "/v1/transactions", 100, "n-2", body, sig},
		{"tampered body", s, "POST", "/v1/transactions", 100, "n-1", []byte(`{"payload":"AAED"}`), sig},
		{"garbage signature", s, "POST", "/v1/transactions", 100, "n-1", body, "not-hex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.signer.Verify(tt.method, tt.path, tt.timestamp, tt.nonce, tt.body, tt.sig))
		})
	}
}

func TestCanonicalString(t *testing.T) {
	got := CanonicalString("POST", "/v1/transactions", 1708092000, "abc123", []byte(`{"a":1}`))
	assert.Equal(t, `POST|/v1/transactions|1708092000|abc123|{"a":1}`, got)
}
