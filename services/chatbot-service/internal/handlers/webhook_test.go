package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/inbox"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/whatsapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReplier struct {
	mock.Mock
}

func (m *mockReplier) Handle(ctx context.Context, msg chat.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type sentMessage struct {
	to, text string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) ProviderID() string { return "test" }

func (s *recordingSender) Send(_ context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{to, text})
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const payload = `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"messages":[
 {"id":"wamid.A","from":"5491155550001","timestamp":"1760781600","type":"text","text":{"body":"hola"}},
 {"id":"wamid.B","from":"5491155550001","timestamp":"1760781601","type":"text","text":{"body":"1"}},
 {"id":"wamid.C","from":"5491155550002","timestamp":"1760781602","type":"audio","audio":{"id":"x"}}
]}}]}]}`

func newWebhook(cfg WebhookConfig, engine Replier, sender chat.Sender) *WebhookHandler {
	return NewWebhookHandler(cfg, whatsapp.NewTranslator(), engine, sender, inbox.NewMemoryInbox(0), testLogger())
}

func TestWebhookVerify(t *testing.T) {
	h := newWebhook(WebhookConfig{VerifyToken: "tok"}, &mockReplier{}, &recordingSender{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookDeliversInOrderAndDeduplicates(t *testing.T) {
	engine := &mockReplier{}
	var order []string
	engine.On("Handle", mock.Anything, mock.AnythingOfType("chat.Message")).
		Run(func(args mock.Arguments) { order = append(order, args.Get(1).(chat.Message).Text) }).
		Return("respuesta", nil)
	sender := &recordingSender{}
	h := newWebhook(WebhookConfig{}, engine, sender)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(payload)))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, []string{"hola", "1"}, order)
	engine.AssertNumberOfCalls(t, "Handle", 2)
	require.Len(t, sender.sent, 3)
	assert.Equal(t, sentMessage{"5491155550001", "respuesta"}, sender.sent[0])
	assert.Equal(t, "5491155550002", sender.sent[2].to)
	assert.Contains(t, sender.sent[2].text, "texto")
}

func TestWebhookSignature(t *testing.T) {
	engine := &mockReplier{}
	engine.On("Handle", mock.Anything, mock.Anything).Return("ok", nil)
	h := newWebhook(WebhookConfig{AppSecret: "shh"}, engine, &recordingSender{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(payload)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	engine.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(payload))
	req.Header.Set(whatsapp.SignatureHeader, whatsapp.Sign([]byte(payload), "shh"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookBadPayload(t *testing.T) {
	h := newWebhook(WebhookConfig{}, &mockReplier{}, &recordingSender{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookFailuresStillAcknowledge(t *testing.T) {
	engine := &mockReplier{}
	engine.On("Handle", mock.Anything, mock.Anything).Return("Tuvimos un problema", errors.New("booking down"))
	sender := &recordingSender{err: errors.New("provider down")}
	h := newWebhook(WebhookConfig{}, engine, sender)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(payload)))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, sender.sent)
	assert.Equal(t, "Tuvimos un problema", sender.sent[0].text)
}
