// Package api is the driver's REST client for the three endpoints the agent consumes.
package api

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

	"github.com/rideline-io/rideline/internal/driveragent/identity"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rideline api: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("rideline api: %d %s", e.Code, e.Message)
}

// Ride is one entry of the driver's ride list.
type Ride struct {
	ID             string     `json:"id"`
	RideNumber     string     `json:"rideNumber,omitempty"`
	Status         string     `json:"status"`
	PickupAddress  string     `json:"pickupAddress,omitempty"`
	DropoffAddress string     `json:"dropoffAddress,omitempty"`
	Fare           float64    `json:"fare,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Client calls the rideline REST API with the driver's bearer token.
type Client struct {
	baseURL string
	tokens  identity.TokenProvider
	client  *http.Client
}

// NewClient returns a Client for baseURL. A nil httpClient uses a client with timeout.
func NewClient(baseURL string, tokens identity.TokenProvider, httpClient *http.Client, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), tokens: tokens, client: httpClient}, nil
}

// VerifyOTP checks the rider's OTP for rideID.
func (c *Client) VerifyOTP(ctx context.Context, rideID, otp string) error {
	path := fmt.Sprintf("/api/rides/%s/verify-otp", url.PathEscape(rideID))
	return c.do(ctx, http.MethodPost, path, map[string]string{"otp": otp}, nil)
}

// CompleteRide marks rideID as completed.
func (c *Client) CompleteRide(ctx context.Context, rideID string) error {
	path := fmt.Sprintf("/api/rides/%s/complete", url.PathEscape(rideID))
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// MyRides lists the driver's rides.
func (c *Client) MyRides(ctx context.Context) ([]Ride, error) {
	var out struct {
		Rides []Ride `json:"rides"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/drivers/me/rides", nil, &out); err != nil {
		return nil, err
	}
	return out.Rides, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("get token: %w", err)
		}
		if token = strings.TrimSpace(token); token != "" {
			req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(token, "Bearer "))
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil {
		se.Message = e.Message
		if se.Message == "" {
			se.Message = e.Error
		}
	} else {
		se.Message = strings.TrimSpace(string(b))
	}
	return se
}
