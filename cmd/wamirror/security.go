package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "wamirror/internal/errors"
)

// verifySignature reads the request body and checks it against a
// "sha256=<hex>" HMAC header. An empty secret disables the check. The body is
// restored on r so later readers still see it.
func verifySignature(r *http.Request, secretKey string, signatureHeaderName string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperrors.NewMalformedPayloadError("webhook", fmt.Errorf("failed to read request body: %w", err))
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if secretKey == "" {
		return body, nil
	}

	signatureHeader := r.Header.Get(signatureHeaderName)
	if signatureHeader == "" {
		return nil, apperrors.NewAuthError("missing signature header " + signatureHeaderName)
	}

	parts := strings.SplitN(signatureHeader, "=", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "sha256" {
		return nil, apperrors.NewAuthError("invalid signature format in header " + signatureHeaderName)
	}
	expectedSignatureHex := strings.ToLower(parts[1])

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	computedSignatureHex := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computedSignatureHex), []byte(expectedSignatureHex)) {
		return nil, apperrors.NewAuthError("signature mismatch")
	}
	return body, nil
}

// secureEqual compares tokens in constant time.
func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
