// Package notify pushes sales-team alerts to Slack and Discord webhooks.
// Delivery is best effort: a failed alert is logged, never propagated to
// the conversation flow.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/config"
	"github.com/dinamicamotors/leadflow/internal/domain"
	"github.com/dinamicamotors/leadflow/internal/sanitize"
)

// Notifier is the alerting surface the services depend on.
type Notifier interface {
	HotLead(ctx context.Context, lead *domain.Lead)
	StaleLead(ctx context.Context, lead *domain.Lead, daysSilent int)
	DailySummary(ctx context.Context, counts map[domain.Stage]int, hotLeads []*domain.Lead)
	SystemError(ctx context.Context, component string, err error)
}

// Webhooks sends alerts to the configured Slack and Discord webhooks.
// Channels with an empty URL are skipped.
type Webhooks struct {
	slackURL   string
	discordURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a webhook notifier.
func New(cfg *config.NotifyConfig, logger *zap.Logger) *Webhooks {
	return &Webhooks{
		slackURL:   cfg.SlackWebhookURL,
		discordURL: cfg.DiscordWebhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

const (
	colorHot     = "#e01e5a"
	colorWarning = "#ecb22e"
	colorInfo    = "#2eb67d"
)

// slackPayload is the incoming-webhook message format.
type slackPayload struct {
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// discordPayload is the Discord webhook message format.
type discordPayload struct {
	Content string `json:"content"`
}

// HotLead alerts the team that a lead just turned hot.
func (w *Webhooks) HotLead(ctx context.Context, lead *domain.Lead) {
	model := "sin modelo"
	if lead.Qualification.InterestedModel != nil {
		model = *lead.Qualification.InterestedModel
	}

	w.send(ctx, slackPayload{
		Attachments: []slackAttachment{{
			Color: colorHot,
			Title: "🔥 Lead caliente",
			Text:  fmt.Sprintf("%s está listo para cerrar.", displayName(lead)),
			Fields: []slackField{
				{Title: "Teléfono", Value: lead.Phone, Short: true},
				{Title: "Modelo", Value: model, Short: true},
				{Title: "Score", Value: fmt.Sprintf("%d", lead.Score), Short: true},
				{Title: "Etapa", Value: string(lead.Stage), Short: true},
			},
		}},
	}, fmt.Sprintf("🔥 **Lead caliente**: %s (%s), modelo %s, score %d",
		displayName(lead), lead.Phone, model, lead.Score))
}

// StaleLead alerts that a previously engaged lead has gone quiet.
func (w *Webhooks) StaleLead(ctx context.Context, lead *domain.Lead, daysSilent int) {
	w.send(ctx, slackPayload{
		Attachments: []slackAttachment{{
			Color: colorWarning,
			Title: "⏰ Lead sin respuesta",
			Text: fmt.Sprintf("%s lleva %d día(s) sin contestar en etapa %s.",
				displayName(lead), daysSilent, lead.Stage),
			Fields: []slackField{
				{Title: "Teléfono", Value: lead.Phone, Short: true},
				{Title: "Temperatura", Value: string(lead.Temperature), Short: true},
			},
		}},
	}, fmt.Sprintf("⏰ **Lead sin respuesta**: %s (%s), %d día(s), etapa %s",
		displayName(lead), lead.Phone, daysSilent, lead.Stage))
}

// DailySummary posts the funnel snapshot and the current hot-lead list.
func (w *Webhooks) DailySummary(ctx context.Context, counts map[domain.Stage]int, hotLeads []*domain.Lead) {
	var sb strings.Builder
	total := 0
	for _, stage := range domain.Stages() {
		n := counts[stage]
		total += n
		if n > 0 {
			fmt.Fprintf(&sb, "%s: %d\n", stage, n)
		}
	}
	fmt.Fprintf(&sb, "Total: %d", total)

	hot := "ninguno"
	if len(hotLeads) > 0 {
		names := make([]string, 0, len(hotLeads))
		for _, l := range hotLeads {
			names = append(names, displayName(l))
		}
		hot = strings.Join(names, ", ")
	}

	w.send(ctx, slackPayload{
		Attachments: []slackAttachment{{
			Color: colorInfo,
			Title: "📊 Resumen diario del embudo",
			Text:  sb.String(),
			Fields: []slackField{
				{Title: "Leads calientes", Value: hot, Short: false},
			},
		}},
	}, fmt.Sprintf("📊 **Resumen diario**\n%s\nCalientes: %s", sb.String(), hot))
}

// SystemError alerts that a backend component is failing. The error
// text is scrubbed because upstream API errors can echo credentials.
func (w *Webhooks) SystemError(ctx context.Context, component string, err error) {
	detail := sanitize.Error(err)
	w.send(ctx, slackPayload{
		Attachments: []slackAttachment{{
			Color: colorHot,
			Title: "🚨 Error del sistema",
			Text:  fmt.Sprintf("%s: %s", component, detail),
		}},
	}, fmt.Sprintf("🚨 **Error del sistema** en %s: %s", component, detail))
}

// send posts the payloads to every configured channel.
func (w *Webhooks) send(ctx context.Context, slack slackPayload, discordText string) {
	if w.slackURL != "" {
		if err := w.post(ctx, w.slackURL, slack); err != nil {
			w.logger.Warn("slack notification failed", zap.Error(err))
		}
	}
	if w.discordURL != "" {
		if err := w.post(ctx, w.discordURL, discordPayload{Content: discordText}); err != nil {
			w.logger.Warn("discord notification failed", zap.Error(err))
		}
	}
}

func (w *Webhooks) post(ctx context.Context, webhookURL string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook error: status %d", resp.StatusCode)
	}
	return nil
}

func displayName(lead *domain.Lead) string {
	if lead.Name != "" {
		return lead.Name
	}
	return lead.Phone
}
