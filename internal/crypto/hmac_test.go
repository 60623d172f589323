package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"
)

func TestHeadersAt_Deterministic(t *testing.T) {
	auth := &HMACAuth{Key: "test_key", Secret: "test_secret"}

	const ts = int64(1234567890000)
	const payload = `{"category":"linear","symbol":"BTCUSDT"}`

	h1 := auth.HeadersAt(payload, ts)
	h2 := auth.HeadersAt(payload, ts)

	if h1[HeaderSign] != h2[HeaderSign] {
		t.Fatal("same input must produce the same signature")
	}
	if h1[HeaderAPIKey] != "test_key" {
		t.Fatalf("%s = %q, want test_key", HeaderAPIKey, h1[HeaderAPIKey])
	}
	if h1[HeaderTimestamp] != "1234567890000" {
		t.Fatalf("%s = %q, want 1234567890000", HeaderTimestamp, h1[HeaderTimestamp])
	}
	if h1[HeaderRecvWindow] != RecvWindow {
		t.Fatalf("%s = %q, want %q", HeaderRecvWindow, h1[HeaderRecvWindow], RecvWindow)
	}
}

func TestHeadersAt_SignatureFormula(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s"}

	const ts = int64(1700000000001)
	const payload = "category=linear&symbol=BTCUSDT"

	got := auth.HeadersAt(payload, ts)[HeaderSign]

	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte("1700000000001" + "k" + RecvWindow + payload))
	want := hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Fatalf("signature = %s, want %s", got, want)
	}
}

func TestHeadersAt_LowerHex64(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s"}
	sig := auth.HeadersAt("", 1)[HeaderSign]

	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64", len(sig))
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(sig) {
		t.Fatalf("signature %q is not lower-hex", sig)
	}
}

func TestHeadersAt_PayloadSensitive(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s"}

	a := auth.HeadersAt("category=linear&symbol=BTCUSDT", 1)[HeaderSign]
	b := auth.HeadersAt("category=linear&symbol=ETHUSDT", 1)[HeaderSign]
	if a == b {
		t.Fatal("different payloads must produce different signatures")
	}
}

func TestString_Redacts(t *testing.T) {
	auth := &HMACAuth{Key: "supersecretkey", Secret: "supersecretvalue"}
	s := auth.String()
	if strings.Contains(s, "supersecretkey") || strings.Contains(s, "supersecretvalue") {
		t.Fatalf("String leaks credentials: %s", s)
	}
}
