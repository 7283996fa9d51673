package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

var (
	ErrVerifyRejected   = errors.New("webhook verification rejected")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

const SignatureHeader = "X-Hub-Signature-256"

// Verify answers the subscription handshake. Both the Meta names (hub.mode, hub.verify_token,
// hub.challenge) and the bare names are accepted. It returns the challenge to echo.
func Verify(q url.Values, token string) (string, error) {
	mode := firstNonEmpty(q.Get("hub.mode"), q.Get("mode"))
	got := firstNonEmpty(q.Get("hub.verify_token"), q.Get("verify_token"))
	challenge := firstNonEmpty(q.Get("hub.challenge"), q.Get("challenge"))

	if token == "" || mode != "subscribe" || challenge == "" {
		return "", ErrVerifyRejected
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return "", ErrVerifyRejected
	}
	return challenge, nil
}

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(body []byte, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC-SHA256 of body keyed by appSecret.
func VerifySignature(body []byte, header, appSecret string) error {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
