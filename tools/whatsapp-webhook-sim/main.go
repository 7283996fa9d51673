package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	var (
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8087"), "chatbot-service base url")
		from    = flag.String("from", getenv("FROM", "5491155550001"), "sender phone number")
		text    = flag.String("text", "hola", "message body")
		secret  = flag.String("secret", getenv("WHATSAPP_APP_SECRET", ""), "app secret used to sign the payload (optional)")
		verify  = flag.Bool("verify", false, "perform the GET verification handshake instead of posting a message")
		token   = flag.String("verify-token", getenv("WHATSAPP_VERIFY_TOKEN", ""), "verify token for -verify")
	)
	flag.Parse()

	endpoint := strings.TrimRight(*baseURL, "/") + "/webhooks/whatsapp"
	if *verify {
		runVerify(endpoint, *token)
		return
	}

	if strings.TrimSpace(*text) == "" {
		fatal("-text is required")
	}
	now := time.Now().UTC()
	payload, err := buildMessageJSON(*from, *text, now)
	if err != nil {
		fatal(err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if *secret != "" {
		mac := hmac.New(sha256.New, []byte(*secret))
		mac.Write(payload)
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func runVerify(endpoint, token string) {
	if strings.TrimSpace(token) == "" {
		fatal("WHATSAPP_VERIFY_TOKEN is required for -verify")
	}
	challenge := strconv.FormatInt(time.Now().UnixNano(), 10)
	q := url.Values{
		"hub.mode":         {"subscribe"},
		"hub.verify_token": {token},
		"hub.challenge":    {challenge},
	}
	resp, err := http.Get(endpoint + "?" + q.Encode())
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d challenge_ok=%t\n", resp.StatusCode, string(body) == challenge)
}

// buildMessageJSON mimics the Cloud API envelope for one inbound text message.
func buildMessageJSON(from, text string, t time.Time) ([]byte, error) {
	return json.Marshal(map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "sim-business",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"messages": []any{map[string]any{
						"id":        fmt.Sprintf("wamid.sim.%d", t.UnixNano()),
						"from":      from,
						"timestamp": strconv.FormatInt(t.Unix(), 10),
						"type":      "text",
						"text":      map[string]any{"body": text},
					}},
				},
			}},
		}},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
