package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultAPIBase = "https://graph.facebook.com/v20.0"

// CloudSender posts text messages through the WhatsApp Cloud API.
type CloudSender struct {
	url   string
	token string
	http  *http.Client
}

func NewCloudSender(apiBase, phoneNumberID, token string, timeout time.Duration) *CloudSender {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CloudSender{
		url:   apiBase + "/" + strings.TrimSpace(phoneNumberID) + "/messages",
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *CloudSender) ProviderID() string {
	return "whatsapp-cloud"
}

type outboundText struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

func (s *CloudSender) Send(ctx context.Context, to string, text string) error {
	if s.token == "" {
		return errors.New("whatsapp access token not configured")
	}
	payload := outboundText{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
	}
	payload.Text.Body = text
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp send returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

var _ chat.Sender = (*CloudSender)(nil)
