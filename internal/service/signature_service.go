package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureService implements ports.SignatureService with HMAC-SHA256
// over the raw payload bytes.
type SignatureService struct{}

// NewSignatureService creates a new signature service.
func NewSignatureService() *SignatureService {
	return &SignatureService{}
}

// Sign computes the hex-encoded HMAC-SHA256 of the payload.
func (s *SignatureService) Sign(secretKey string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time.
func (s *SignatureService) Verify(secretKey string, payload []byte, signature string) bool {
	expected := s.Sign(secretKey, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
