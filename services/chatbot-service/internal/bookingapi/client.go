// Package bookingapi is the chatbot's HTTP client for booking-service.
package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/barberbook/barberbook/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrSlotTaken       = errors.New("time slot already booked")
	ErrSlotUnavailable = errors.New("time slot not available")
)

type Location struct {
	ID       string   `json:"location_id"`
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Keywords []string `json:"keywords"`
}

type Staff struct {
	ID   string `json:"staff_id"`
	Name string `json:"name"`
}

type BookRequest struct {
	LocationID    string `json:"location_id"`
	StaffID       string `json:"staff_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Source        string `json:"source"`

	IdempotencyKey string `json:"-"`
}

type Booking struct {
	AppointmentID string   `json:"appointment_id"`
	ClientID      string   `json:"client_id"`
	StaffID       string   `json:"staff_id"`
	StaffName     string   `json:"staff_name"`
	ServiceName   string   `json:"service_name"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	Status        string   `json:"status"`
	Price         string   `json:"price"`
	Warnings      []string `json:"warnings"`
}

// StatusError is returned for non-2xx responses without a more specific mapping.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("booking-service returned %d", e.Status)
	}
	return fmt.Sprintf("booking-service returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	var out []Location
	if err := c.get(ctx, "/api/v1/public/locations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Staff(ctx context.Context, locationID string) ([]Staff, error) {
	var out []Staff
	q := url.Values{"location_id": {locationID}}
	if err := c.get(ctx, "/api/v1/public/staff", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FreeTimes returns the bookable HH:MM times for a concrete staff member, ascending.
func (c *Client) FreeTimes(ctx context.Context, locationID, staffID, date string) ([]string, error) {
	var out struct {
		Times []string `json:"times"`
	}
	q := url.Values{"location_id": {locationID}, "staff_id": {staffID}, "date": {date}}
	if err := c.get(ctx, "/api/v1/public/slots", q, &out); err != nil {
		return nil, err
	}
	return out.Times, nil
}

func (c *Client) Book(ctx context.Context, req BookRequest) (Booking, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return Booking{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/public/book", bytes.NewReader(raw))
	if err != nil {
		return Booking{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	var out Booking
	if err := c.do(httpReq, &out); err != nil {
		return Booking{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	httpx.PropagateRequestID(req.Context(), req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrSlotTaken
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrSlotUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return &StatusError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode booking-service response: %w", err)
	}
	return nil
}
