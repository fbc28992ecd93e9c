// Package whatsapp sends outbound messages through the Twilio WhatsApp API
// and validates inbound webhook signatures.
package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/circuitbreaker"
	"github.com/dinamicamotors/leadflow/internal/config"
	"github.com/dinamicamotors/leadflow/internal/ratelimit"
)

// Client sends WhatsApp messages through the Twilio REST API.
type Client struct {
	accountSID     string
	authToken      string
	fromNumber     string
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retry          *ratelimit.Backoff
	logger         *zap.Logger
}

// NewClient creates a new Twilio WhatsApp client.
func NewClient(cfg *config.WhatsAppConfig, logger *zap.Logger) *Client {
	return &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    cfg.APIURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		circuitBreaker: circuitbreaker.New("twilio-api", nil, logger),
		retry:          ratelimit.NewBackoff(nil, logger),
		logger:         logger,
	}
}

// messageResponse is the subset of Twilio's response the client cares about.
type messageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// errorResponse is Twilio's error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Send delivers a WhatsApp text message to the given number. The "to"
// number is the bare E.164 form; the whatsapp: prefix is added here.
// Transient Twilio failures (429, 5xx) are retried with backoff before the
// circuit breaker counts the call as failed.
func (c *Client) Send(ctx context.Context, to, body string) error {
	return c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.retry.Execute(ctx, func(ctx context.Context) error {
			return c.doSend(ctx, to, body)
		})
	})
}

func (c *Client) doSend(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("From", c.fromNumber)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		sendErr := fmt.Errorf("twilio api error: status %d", resp.StatusCode)
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			sendErr = fmt.Errorf("twilio api error %d: %s", errResp.Code, errResp.Message)
		}
		return &ratelimit.RetryableError{
			Err:        sendErr,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp),
		}
	}

	var msg messageResponse
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug("whatsapp message sent",
		zap.String("sid", msg.SID),
		zap.String("status", msg.Status),
	)
	return nil
}

// retryAfter parses the Retry-After header in seconds, 0 when absent.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (c *Client) IsCircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}

// CircuitBreakerStats returns the current circuit breaker statistics.
func (c *Client) CircuitBreakerStats() circuitbreaker.Stats {
	return c.circuitBreaker.Stats()
}

// ValidateSignature checks the X-Twilio-Signature header: HMAC-SHA1 over
// the full request URL concatenated with the sorted form parameters,
// base64 encoded. The form must already be parsed.
func ValidateSignature(r *http.Request, authToken, publicURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(publicURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(r.PostForm.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
