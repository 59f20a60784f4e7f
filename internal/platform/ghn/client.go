package ghn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client queries GHN's public order-tracking endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Event is one tracking-log entry.
type Event struct {
	Status      string    `json:"status"`
	Description string    `json:"status_name"`
	Location    string    `json:"location"`
	Time        time.Time `json:"action_at"`
}

// TrackResult is the classified outcome of one lookup.
type TrackResult struct {
	Found  bool
	Status string
	Events []Event
}

type trackingResponse struct {
	Code int `json:"code"`
	Data struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
		TrackingLogs []Event `json:"tracking_logs"`
	} `json:"data"`
}

// Track looks up one GHN order code. code != 200 in the body means the order
// is unknown; that is a result, not an error.
func (c *Client) Track(ctx context.Context, orderCode string) (*TrackResult, error) {
	orderCode = strings.ToUpper(strings.TrimSpace(orderCode))

	payload, _ := json.Marshal(map[string]string{"order_code": orderCode})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/order-tracking/public-api/client/tracking-logs", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ghn request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded trackingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("malformed ghn response: %w", err)
	}

	if decoded.Code != 200 {
		return &TrackResult{Found: false}, nil
	}
	return &TrackResult{
		Found:  true,
		Status: decoded.Data.Order.Status,
		Events: decoded.Data.TrackingLogs,
	}, nil
}
