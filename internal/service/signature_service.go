package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HMACSigner signs outbound ledger gateway requests with HMAC-SHA256.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

// Sign returns the lowercase hex signature of the canonical request string.
func (s *HMACSigner) Sign(method, path string, timestamp int64, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(CanonicalString(method, path, timestamp, nonce, body)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature against the expected one in constant time.
func (s *HMACSigner) Verify(method, path string, timestamp int64, nonce string, body []byte, signature string) bool {
	expected := s.Sign(method, path, timestamp, nonce, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CanonicalString is METHOD|PATH|TIMESTAMP|NONCE|BODY.
func CanonicalString(method, path string, timestamp int64, nonce string, body []byte) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", method, path, timestamp, nonce, body)
}
