package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"s3cret"}, "hub.challenge": {"1158201444"}}
	got, err := Verify(q, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "1158201444", got)

	plain := url.Values{"mode": {"subscribe"}, "verify_token": {"s3cret"}, "challenge": {"abc"}}
	got, err = Verify(plain, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	q.Set("hub.verify_token", "wrong")
	_, err = Verify(q, "s3cret")
	assert.ErrorIs(t, err, ErrVerifyRejected)

	q.Set("hub.verify_token", "s3cret")
	q.Set("hub.mode", "unsubscribe")
	_, err = Verify(q, "s3cret")
	assert.ErrorIs(t, err, ErrVerifyRejected)

	_, err = Verify(plain, "")
	assert.ErrorIs(t, err, ErrVerifyRejected)
}

func TestSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	header := Sign(body, "app-secret")
	require.NoError(t, VerifySignature(body, header, "app-secret"))

	assert.ErrorIs(t, VerifySignature(body, header, "other"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature([]byte("{}"), header, "app-secret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, "", "app-secret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, "sha256=zz", "app-secret"), ErrInvalidSignature)
}

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "102290129340398",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [
          {"id": "wamid.1", "from": "5491155550001", "timestamp": "1760781600", "type": "text", "text": {"body": "  Hola  "}},
          {"id": "wamid.2", "from": "5491155550001", "timestamp": "1760781601", "type": "image", "image": {"id": "img"}}
        ]
      }
    }]
  }]
}`

func TestTranslate(t *testing.T) {
	msgs, err := NewTranslator().Translate([]byte(samplePayload))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "wamid.1", msgs[0].ID)
	assert.Equal(t, "5491155550001", msgs[0].Sender)
	assert.Equal(t, chat.KindText, msgs[0].Kind)
	assert.Equal(t, "Hola", msgs[0].Text)
	assert.Equal(t, time.Unix(1760781600, 0).UTC(), msgs[0].Timestamp)

	assert.Equal(t, chat.KindUnsupported, msgs[1].Kind)
	assert.Empty(t, msgs[1].Text)
}

func TestTranslateStatusOnly(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.9","status":"read"}]}}]}]}`
	msgs, err := NewTranslator().Translate([]byte(body))
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = NewTranslator().Translate([]byte("not json"))
	assert.Error(t, err)
}

func TestCloudSender(t *testing.T) {
	var gotPath, gotAuth string
	var got outboundText
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewCloudSender(srv.URL+"/", "12345", "tok", time.Second)
	require.NoError(t, s.Send(context.Background(), "5491155550001", "Hola!"))
	assert.Equal(t, "/12345/messages", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "5491155550001", got.To)
	assert.Equal(t, "Hola!", got.Text.Body)
}

func TestCloudSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewCloudSender(srv.URL, "1", "tok", time.Second).Send(context.Background(), "1", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	err = NewCloudSender(srv.URL, "1", "", time.Second).Send(context.Background(), "1", "x")
	assert.Error(t, err)
}
