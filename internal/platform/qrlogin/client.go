package qrlogin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the external QR-login microservice that turns a scanned
// Shopee QR code into session cookies.
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

// CreateResult is a freshly issued remote session plus its QR image.
type CreateResult struct {
	SessionID string
	QRImage   []byte
}

// Status is the raw status report for one remote session. The service's
// vocabulary is not stable across responses, so Raw is kept verbatim for the
// caller's classifier.
type Status struct {
	Raw     string
	Scanned bool // explicit confirmed flag, present on some responses only
}

// ExchangeResult is the payload delivered once a session resolves.
type ExchangeResult struct {
	Cookie  string
	Account string
}

// Create opens a new remote QR session.
func (c *Client) Create(ctx context.Context) (*CreateResult, error) {
	var decoded struct {
		SessionID string `json:"session_id"`
		QRBase64  string `json:"qr_base64"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/qr/create", nil, &decoded); err != nil {
		return nil, err
	}
	if decoded.SessionID == "" {
		return nil, fmt.Errorf("qr service returned no session id")
	}

	image, err := base64.StdEncoding.DecodeString(decoded.QRBase64)
	if err != nil {
		return nil, fmt.Errorf("malformed qr image: %w", err)
	}
	return &CreateResult{SessionID: decoded.SessionID, QRImage: image}, nil
}

// GetStatus polls one remote session.
func (c *Client) GetStatus(ctx context.Context, sessionID string) (*Status, error) {
	path := "/api/qr/status?" + url.Values{"session_id": {sessionID}}.Encode()

	var decoded struct {
		Status  string `json:"status"`
		Scanned bool   `json:"scanned"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &decoded); err != nil {
		return nil, err
	}
	return &Status{Raw: decoded.Status, Scanned: decoded.Scanned}, nil
}

// Exchange trades a scanned session for its cookies.
func (c *Client) Exchange(ctx context.Context, sessionID string) (*ExchangeResult, error) {
	payload, _ := json.Marshal(map[string]string{"session_id": sessionID})

	var decoded struct {
		Cookie  string `json:"cookie"`
		Account string `json:"account"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/qr/exchange", payload, &decoded); err != nil {
		return nil, err
	}
	if decoded.Cookie == "" {
		return nil, fmt.Errorf("qr service returned no cookie")
	}
	return &ExchangeResult{Cookie: decoded.Cookie, Account: decoded.Account}, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte, dest interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qr service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qr service status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("malformed qr service response: %w", err)
	}
	return nil
}
