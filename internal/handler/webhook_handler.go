package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/audit"
	"github.com/dinamicamotors/leadflow/internal/config"
	"github.com/dinamicamotors/leadflow/internal/metrics"
	"github.com/dinamicamotors/leadflow/internal/middleware"
	"github.com/dinamicamotors/leadflow/internal/validation"
	"github.com/dinamicamotors/leadflow/internal/whatsapp"
)

// MessageProcessor handles one inbound WhatsApp message end to end.
type MessageProcessor interface {
	ProcessInboundMessage(ctx context.Context, phone, name, body string) (string, error)
}

// WebhookHandler receives Twilio WhatsApp webhooks.
type WebhookHandler struct {
	processor   MessageProcessor
	phoneLimits *middleware.PhoneRateLimiter
	metrics     *metrics.Metrics
	cfg         *config.Config
	audit       *audit.Logger
	logger      *zap.Logger
}

// WebhookHandlerConfig holds the webhook handler dependencies.
type WebhookHandlerConfig struct {
	Processor   MessageProcessor
	PhoneLimits *middleware.PhoneRateLimiter
	Metrics     *metrics.Metrics
	Config      *config.Config
	Logger      *zap.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	return &WebhookHandler{
		processor:   cfg.Processor,
		phoneLimits: cfg.PhoneLimits,
		metrics:     cfg.Metrics,
		cfg:         cfg.Config,
		audit:       audit.NewLogger(cfg.Logger),
		logger:      cfg.Logger,
	}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/whatsapp", h.HandleInbound)
}

// emptyTwiML tells Twilio not to send an auto-reply; the bot answers
// through the Messages API instead.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// HandleInbound processes one inbound message webhook from Twilio.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.metrics.RecordWebhook("parse_error")
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if h.cfg.WhatsApp.ValidateSignature {
		webhookURL := h.cfg.Server.PublicURL + "/webhook/whatsapp"
		if !whatsapp.ValidateSignature(r, h.cfg.WhatsApp.AuthToken, webhookURL) {
			h.metrics.RecordWebhook("invalid_signature")
			h.audit.WebhookSignatureFailed(r.Context(), r.RemoteAddr, middleware.GetRequestID(r.Context()))
			h.logger.Warn("webhook signature validation failed",
				zap.String("remote_addr", r.RemoteAddr),
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	name := r.PostForm.Get("ProfileName")

	if errs := validation.ValidateInbound(validation.InboundMessage{
		From:        from,
		Body:        body,
		ProfileName: name,
	}); errs.HasErrors() {
		h.metrics.RecordWebhook("parse_error")
		h.audit.WebhookRejected(r.Context(), r.RemoteAddr, middleware.GetRequestID(r.Context()), errs.Error())
		h.logger.Warn("invalid webhook fields", zap.String("detail", errs.Error()))
		http.Error(w, errs.Error(), http.StatusBadRequest)
		return
	}

	phone := validation.SanitizePhoneNumber(strings.TrimPrefix(from, "whatsapp:"))
	body = validation.SanitizeString(body)
	name = validation.SanitizeString(name)
	if !h.phoneLimits.Check(phone) {
		h.metrics.RecordWebhook("rate_limited")
		h.metrics.RecordRateLimitHit("phone")
		h.audit.RateLimitExceeded(r.Context(), metrics.MaskPhoneNumber(phone), r.RemoteAddr,
			middleware.GetRequestID(r.Context()), "phone")
		// 200 so Twilio does not retry a message we chose to drop.
		h.respondTwiML(w)
		return
	}

	h.metrics.RecordWebhook("valid")

	if _, err := h.processor.ProcessInboundMessage(r.Context(), phone, name, body); err != nil {
		h.logger.Error("inbound message processing failed",
			zap.String("phone", metrics.MaskPhoneNumber(phone)),
			zap.Error(err),
		)
		// The reply path failed but the message was received; answering
		// non-2xx would make Twilio redeliver and double-process it.
	}

	h.respondTwiML(w)
}

func (h *WebhookHandler) respondTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
