// Package crypto implements the venue's HMAC request signing.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// RecvWindow is the request validity window the venue expects, in ms.
const RecvWindow = "5000"

// Header names carried on every authenticated request.
const (
	HeaderAPIKey     = "X-API-KEY"
	HeaderTimestamp  = "X-TIMESTAMP"
	HeaderRecvWindow = "X-RECV-WINDOW"
	HeaderSign       = "X-SIGN"
)

// HMACAuth holds the credentials for HMAC-authenticated venue requests.
type HMACAuth struct {
	Key    string // API key
	Secret string // API secret
}

// Headers returns the authentication headers for a request whose signed
// payload is payload: the literal query string for GET, the exact JSON body
// byte-string for POST. The signature covers
// timestamp + api_key + recv_window + payload, hex-encoded.
func (h *HMACAuth) Headers(payload string) map[string]string {
	return h.HeadersAt(payload, time.Now().UnixMilli())
}

// HeadersAt is like Headers but lets the caller supply the millisecond
// timestamp (useful for deterministic testing).
func (h *HMACAuth) HeadersAt(payload string, tsMillis int64) map[string]string {
	ts := strconv.FormatInt(tsMillis, 10)

	message := ts + h.Key + RecvWindow + payload
	sig := hmacSHA256Hex([]byte(h.Secret), message)

	return map[string]string{
		HeaderAPIKey:     h.Key,
		HeaderTimestamp:  ts,
		HeaderRecvWindow: RecvWindow,
		HeaderSign:       sig,
	}
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result as a lower-hex string.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
