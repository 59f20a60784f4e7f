package shopee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ordercheck-bot-backend/internal/common/logger"
)

const userAgent = "Android app Shopee appver=28320 app_type=1"

// Outcome classifies one upstream round trip the way the bot reports it.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeNoOrders      Outcome = "no_orders"
	OutcomeCookieExpired Outcome = "cookie_expired"
	OutcomeUpstream      Outcome = "upstream_error"
	OutcomeTimeout       Outcome = "timeout"
)

type Client struct {
	baseURL      string
	listClient   *http.Client
	detailClient *http.Client
	orderLimit   int
}

func NewClient(baseURL string, listTimeout, detailTimeout time.Duration, orderLimit int) *Client {
	return &Client{
		baseURL:      baseURL,
		listClient:   &http.Client{Timeout: listTimeout},
		detailClient: &http.Client{Timeout: detailTimeout},
		orderLimit:   orderLimit,
	}
}

// OrderFetchResult carries the order details and how the fetch was classified.
type OrderFetchResult struct {
	Details []map[string]interface{}
	Outcome Outcome
	Detail  string // extra info for upstream errors, e.g. "http_503"
}

// FetchOrders fetches the order list with the user cookie and then up to the
// configured number of order details. Shopee reports auth failures with
// HTTP 200 and an error envelope, so cookie death is detected from the body:
// an explicit error field, or an id-less body with at most two top-level keys.
func (c *Client) FetchOrders(ctx context.Context, cookie string) (*OrderFetchResult, error) {
	listURL := fmt.Sprintf("%s/order/get_all_order_and_checkout_list?%s", c.baseURL, url.Values{
		"limit":  {fmt.Sprintf("%d", c.orderLimit)},
		"offset": {"0"},
	}.Encode())

	body, status, err := c.getWithRetry(ctx, c.listClient, listURL, cookie)
	if err != nil {
		if isTimeout(err) {
			return &OrderFetchResult{Outcome: OutcomeTimeout, Detail: err.Error()}, nil
		}
		return nil, fmt.Errorf("order list request failed: %w", err)
	}
	if status != http.StatusOK {
		return &OrderFetchResult{Outcome: OutcomeUpstream, Detail: fmt.Sprintf("http_%d", status)}, nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return &OrderFetchResult{Outcome: OutcomeUpstream, Detail: "malformed_json"}, nil
	}

	if isAuthFailure(data) {
		return &OrderFetchResult{Outcome: OutcomeCookieExpired}, nil
	}

	orderIDs := dedupe(ValuesByKey(data, "order_id"))
	if len(orderIDs) == 0 {
		// A near-empty body means the session is dead, not that the account
		// has no orders.
		if len(data) <= 2 {
			return &OrderFetchResult{Outcome: OutcomeCookieExpired}, nil
		}
		return &OrderFetchResult{Outcome: OutcomeNoOrders}, nil
	}

	if len(orderIDs) > c.orderLimit {
		orderIDs = orderIDs[:c.orderLimit]
	}

	var details []map[string]interface{}
	for _, oid := range orderIDs {
		detail, err := c.fetchDetail(ctx, cookie, oid)
		if err != nil {
			logger.Debug().Err(err).Msg("order detail fetch failed")
			continue
		}
		details = append(details, detail)
	}

	if len(details) == 0 {
		return &OrderFetchResult{Outcome: OutcomeCookieExpired}, nil
	}
	return &OrderFetchResult{Details: details, Outcome: OutcomeOK}, nil
}

func (c *Client) fetchDetail(ctx context.Context, cookie string, orderID interface{}) (map[string]interface{}, error) {
	detailURL := fmt.Sprintf("%s/order/get_order_detail?order_id=%v", c.baseURL, orderID)

	body, status, err := c.get(ctx, c.detailClient, detailURL, cookie)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("detail status %d", status)
	}

	var detail map[string]interface{}
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("malformed detail body: %w", err)
	}
	return detail, nil
}

// CheckPhone probes the unbind-phone endpoint with the configured live cookie
// and reports whether the number is still attached to a live account. Only an
// explicit lock keyword marks a number as locked; everything else, including
// transport errors masked by Shopee as data, counts as alive.
func (c *Client) CheckPhone(ctx context.Context, phone84, probeCookie string) (locked bool, err error) {
	payload, _ := json.Marshal(map[string]string{"phone": phone84})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/account/management/check_unbind_phone", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 10; ShopeeApp)")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", probeCookie)
	req.Header.Set("Origin", "https://shopee.vn")
	req.Header.Set("Referer", "https://shopee.vn/")

	resp, err := c.detailClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("phone check request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}

	return containsLockKeyword(string(body)), nil
}

var lockKeywords = []string{
	"phone_locked",
	"account_banned",
	"account_disabled",
	"forbidden",
	"locked",
}

func containsLockKeyword(body string) bool {
	lower := strings.ToLower(body)
	for _, k := range lockKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func isAuthFailure(data map[string]interface{}) bool {
	if code, ok := data["error"].(float64); ok && (code == 401 || code == 403) {
		return true
	}
	if msg, ok := data["error_msg"].(string); ok && msg != "" {
		return true
	}
	if msg, ok := data["msg"].(string); ok {
		if msg == "unauthorized" || msg == "forbidden" {
			return true
		}
	}
	return false
}

// getWithRetry issues the GET and retries exactly once on timeout.
func (c *Client) getWithRetry(ctx context.Context, client *http.Client, rawURL, cookie string) ([]byte, int, error) {
	body, status, err := c.get(ctx, client, rawURL, cookie)
	if err != nil && isTimeout(err) {
		return c.get(ctx, client, rawURL, cookie)
	}
	return body, status, err
}

func (c *Client) get(ctx context.Context, client *http.Client, rawURL, cookie string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cookie", strings.TrimSpace(cookie))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func dedupe(ids []interface{}) []interface{} {
	seen := make(map[string]struct{}, len(ids))
	var out []interface{}
	for _, id := range ids {
		key := fmt.Sprintf("%v", id)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}
