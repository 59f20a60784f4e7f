package spx

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

// Client talks to the SPX tracking mirror. The mirror wraps Shopee Express's
// own tracking feed and reports failures through retcode, not HTTP status.
type Client struct {
	apiURL     string
	httpClient *http.Client
}

func NewClient(apiURL string, timeout time.Duration) *Client {
	return &Client{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Record is one tracking event.
type Record struct {
	ActualTime       int64  `json:"actual_time"`
	BuyerDescription string `json:"buyer_description"`
	CurrentLocation  struct {
		LocationName string `json:"location_name"`
	} `json:"current_location"`
}

// TrackResult is the classified outcome of one lookup.
type TrackResult struct {
	Found   bool
	Records []Record
}

type mirrorResponse struct {
	Retcode int `json:"retcode"`
	Data    struct {
		SLSTrackingInfo struct {
			Records []Record `json:"records"`
		} `json:"sls_tracking_info"`
	} `json:"data"`
}

// Track looks up one SPX waybill code. A non-zero retcode means the code is
// unknown to the mirror; that is a result, not an error.
func (c *Client) Track(ctx context.Context, code string) (*TrackResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	payload, _ := json.Marshal(map[string]string{"tracking_id": code})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spx request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded mirrorResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("malformed spx response: %w", err)
	}

	if decoded.Retcode != 0 {
		return &TrackResult{Found: false}, nil
	}
	return &TrackResult{Found: true, Records: decoded.Data.SLSTrackingInfo.Records}, nil
}
