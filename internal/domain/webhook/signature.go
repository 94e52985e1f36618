// Package webhook verifies signed provider webhooks and turns them into
// sync jobs: signature check first, then nonce replay suppression and
// revocation awareness, then enqueue.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSignature is the hard security failure: the request could not be
// authenticated. Never retried, never soft-ignored.
var ErrInvalidSignature = errors.New("invalid signature")

// parseSignatureHeader splits the provider's signature header format
// "t=<unix_seconds>,v1=<hex_hmac>".
func parseSignatureHeader(header string) (timestamp string, signature string, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}

	if timestamp == "" || signature == "" {
		return "", "", fmt.Errorf("malformed signature header")
	}
	if _, err := strconv.ParseInt(timestamp, 10, 64); err != nil {
		return "", "", fmt.Errorf("malformed signature timestamp")
	}

	return timestamp, signature, nil
}

// VerifySignature recomputes HMAC-SHA256(secret, "<t>.<raw_body>") and
// compares it to v1 in constant time. It touches no storage, so it is safe
// to run before any lookup that could leak connection existence.
func VerifySignature(secret []byte, header string, body []byte) error {
	timestamp, signature, err := parseSignatureHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)

	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}

// ComputeSignature builds a signature header for the given body, timestamp
// and secret. Used by operator tooling and tests; the inverse of
// VerifySignature.
func ComputeSignature(secret []byte, unixSeconds int64, body []byte) string {
	timestamp := strconv.FormatInt(unixSeconds, 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
