package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/barberbook/barberbook/libs/httpx"
	"github.com/barberbook/barberbook/libs/kafkax"
	"github.com/barberbook/barberbook/libs/runtime"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/dialogue"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/whatsapp"
)

// Replier produces the single reply to one inbound message.
type Replier interface {
	Handle(ctx context.Context, msg chat.Message) (string, error)
}

type WebhookConfig struct {
	VerifyToken    string
	// AppSecret enables X-Hub-Signature-256 checking when set.
	AppSecret      string
	ProcessTimeout time.Duration
}

type WebhookHandler struct {
	cfg        WebhookConfig
	translator chat.Translator
	engine     Replier
	sender     chat.Sender
	inbox      kafkax.Inbox
	logger     *slog.Logger
}

func NewWebhookHandler(cfg WebhookConfig, translator chat.Translator, engine Replier, sender chat.Sender, inbox kafkax.Inbox, logger *slog.Logger) *WebhookHandler {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 20 * time.Second
	}
	return &WebhookHandler{
		cfg:        cfg,
		translator: translator,
		engine:     engine,
		sender:     sender,
		inbox:      inbox,
		logger:     logger.With("provider", sender.ProviderID()),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WebhookHandler) verify(w http.ResponseWriter, r *http.Request) {
	challenge, err := whatsapp.Verify(r.URL.Query(), h.cfg.VerifyToken)
	if err != nil {
		h.logger.Warn("webhook verification rejected", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// receive answers 200 once the body is authentic and parseable. Business failures are logged
// only, so the provider does not redeliver.
func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if h.cfg.AppSecret != "" {
		if err := whatsapp.VerifySignature(body, r.Header.Get(whatsapp.SignatureHeader), h.cfg.AppSecret); err != nil {
			h.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			httpx.WriteError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	msgs, err := h.translator.Translate(body)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.cfg.ProcessTimeout)
	defer cancel()

	handled := 0
	for _, msg := range msgs {
		if h.process(ctx, msg) {
			handled++
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"received": len(msgs), "handled": handled})
}

func (h *WebhookHandler) process(ctx context.Context, msg chat.Message) bool {
	logger := h.logger.With("sender", runtime.MaskPhone(msg.Sender), "message_id", msg.ID)

	if msg.ID != "" && h.inbox != nil {
		fresh, err := h.inbox.Record(ctx, msg.ID, "whatsapp")
		if err != nil {
			logger.Error("inbox record failed", "err", err)
		} else if !fresh {
			logger.Info("duplicate message skipped")
			return false
		}
	}

	var reply string
	if msg.Kind != chat.KindText {
		reply = dialogue.UnsupportedReply()
	} else {
		var err error
		reply, err = h.engine.Handle(ctx, msg)
		if err != nil {
			logger.Error("dialogue failed", "err", err)
		}
	}
	if reply == "" {
		return true
	}

	if err := h.sender.Send(ctx, msg.Sender, reply); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("reply send timed out", "err", err)
		} else {
			logger.Error("reply send failed", "err", err)
		}
	}
	return true
}
