package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the external balance-ledger service owned by the voucher
// bot. Only the check-balance/deduct pair is consumed.
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

// Enabled reports whether a ledger endpoint is configured at all.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Balance returns the user's ledger balance in the smallest currency unit.
func (c *Client) Balance(ctx context.Context, telegramID int64) (int64, error) {
	var decoded struct {
		Balance int64 `json:"balance"`
	}
	payload, _ := json.Marshal(map[string]int64{"telegram_id": telegramID})
	if err := c.post(ctx, "/api/balance/check", payload, &decoded); err != nil {
		return 0, err
	}
	return decoded.Balance, nil
}

// Deduct charges amount against the user's ledger balance.
func (c *Client) Deduct(ctx context.Context, telegramID int64, amount int64, reason string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"telegram_id": telegramID,
		"amount":      amount,
		"reason":      reason,
	})

	var decoded struct {
		OK bool `json:"ok"`
	}
	if err := c.post(ctx, "/api/balance/deduct", payload, &decoded); err != nil {
		return err
	}
	if !decoded.OK {
		return fmt.Errorf("ledger refused deduction for %d", telegramID)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("malformed ledger response: %w", err)
	}
	return nil
}
