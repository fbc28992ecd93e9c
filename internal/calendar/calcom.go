// Package calendar books showroom appointments through the Cal.com API.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/circuitbreaker"
	"github.com/dinamicamotors/leadflow/internal/config"
	"github.com/dinamicamotors/leadflow/internal/domain"
)

// MaxOfferedSlots is how many appointment options are presented at once.
const MaxOfferedSlots = 5

// Booker is the calendar surface the conversation engine needs.
type Booker interface {
	AvailableSlots(ctx context.Context, from time.Time) ([]domain.AppointmentSlot, error)
	Book(ctx context.Context, lead *domain.Lead, slot domain.AppointmentSlot) error
}

// Client talks to the Cal.com REST API.
type Client struct {
	apiKey         string
	eventTypeID    int
	baseURL        string
	location       *time.Location
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a calendar client. An invalid timezone falls back to UTC.
func NewClient(cfg *config.CalendarConfig, logger *zap.Logger) *Client {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid calendar timezone, using UTC", zap.String("timezone", cfg.Timezone))
		loc = time.UTC
	}

	return &Client{
		apiKey:      cfg.APIKey,
		eventTypeID: cfg.EventTypeID,
		baseURL:     cfg.APIURL,
		location:    loc,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		circuitBreaker: circuitbreaker.New("calcom-api", nil, logger),
		logger:         logger,
	}
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (c *Client) IsCircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}

// slotsResponse is Cal.com's availability response: slot start times
// grouped by date.
type slotsResponse struct {
	Slots map[string][]struct {
		Time time.Time `json:"time"`
	} `json:"slots"`
}

// bookingRequest is the Cal.com booking creation body.
type bookingRequest struct {
	EventTypeID int               `json:"eventTypeId"`
	Start       time.Time         `json:"start"`
	TimeZone    string            `json:"timeZone"`
	Language    string            `json:"language"`
	Responses   map[string]string `json:"responses"`
	Metadata    map[string]string `json:"metadata"`
}

// AvailableSlots returns up to MaxOfferedSlots bookable visit times in the
// week after from, labeled in the dealership's timezone.
func (c *Client) AvailableSlots(ctx context.Context, from time.Time) ([]domain.AppointmentSlot, error) {
	var slots []domain.AppointmentSlot
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var execErr error
		slots, execErr = c.doAvailableSlots(ctx, from)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *Client) doAvailableSlots(ctx context.Context, from time.Time) ([]domain.AppointmentSlot, error) {
	query := url.Values{}
	query.Set("eventTypeId", strconv.Itoa(c.eventTypeID))
	query.Set("startTime", from.UTC().Format(time.RFC3339))
	query.Set("endTime", from.UTC().Add(7*24*time.Hour).Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/slots?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch slots: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar api error: status %d", resp.StatusCode)
	}

	var slotsResp slotsResponse
	if err := json.Unmarshal(body, &slotsResp); err != nil {
		return nil, fmt.Errorf("failed to parse slots: %w", err)
	}

	var all []time.Time
	for _, day := range slotsResp.Slots {
		for _, s := range day {
			all = append(all, s.Time)
		}
	}
	sortTimes(all)

	slots := make([]domain.AppointmentSlot, 0, MaxOfferedSlots)
	for _, t := range all {
		if len(slots) == MaxOfferedSlots {
			break
		}
		slots = append(slots, domain.AppointmentSlot{
			Start: t.UTC(),
			Label: c.FormatSlot(t),
		})
	}
	return slots, nil
}

// Book creates the booking for the chosen slot.
func (c *Client) Book(ctx context.Context, lead *domain.Lead, slot domain.AppointmentSlot) error {
	return c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.doBook(ctx, lead, slot)
	})
}

func (c *Client) doBook(ctx context.Context, lead *domain.Lead, slot domain.AppointmentSlot) error {
	name := lead.Name
	if name == "" {
		name = lead.Phone
	}
	reqBody := bookingRequest{
		EventTypeID: c.eventTypeID,
		Start:       slot.Start.UTC(),
		TimeZone:    c.location.String(),
		Language:    "es",
		Responses: map[string]string{
			"name":  name,
			"phone": lead.Phone,
		},
		Metadata: map[string]string{
			"lead_id": lead.ID.String(),
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/bookings", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("calendar api error: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	c.logger.Info("appointment booked",
		zap.String("phone", lead.Phone),
		zap.Time("start", slot.Start),
	)
	return nil
}

// FormatSlot renders a slot start time for the lead, in dealership local
// time, e.g. "lunes 2 de junio, 10:00".
func (c *Client) FormatSlot(t time.Time) string {
	local := t.In(c.location)
	return fmt.Sprintf("%s %d de %s, %02d:%02d",
		weekdaysES[local.Weekday()], local.Day(), monthsES[local.Month()],
		local.Hour(), local.Minute())
}

var weekdaysES = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "lunes",
	time.Tuesday:   "martes",
	time.Wednesday: "miércoles",
	time.Thursday:  "jueves",
	time.Friday:    "viernes",
	time.Saturday:  "sábado",
}

var monthsES = map[time.Month]string{
	time.January:   "enero",
	time.February:  "febrero",
	time.March:     "marzo",
	time.April:     "abril",
	time.May:       "mayo",
	time.June:      "junio",
	time.July:      "julio",
	time.August:    "agosto",
	time.September: "septiembre",
	time.October:   "octubre",
	time.November:  "noviembre",
	time.December:  "diciembre",
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
