package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"ordercheck-bot-backend/internal/common/logger"
)

// Response represents a Telegram Bot API response envelope.
type Response struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ReplyKeyboard is the persistent keyboard shown under the input field.
type ReplyKeyboard struct {
	Keyboard       [][]string `json:"keyboard"`
	ResizeKeyboard bool       `json:"resize_keyboard"`
}

// InlineButton is one button of an inline keyboard.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboard is a keyboard attached to a single message.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(token string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    fmt.Sprintf("https://api.telegram.org/bot%s", token),
	}
}

// NewClientWithBaseURL points the client at a non-default Bot API endpoint,
// such as a self-hosted bot-api server.
func NewClientWithBaseURL(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// SendMessage sends an HTML message. replyMarkup may be a *ReplyKeyboard, an
// *InlineKeyboard or nil.
func (c *Client) SendMessage(chatID int64, text string, replyMarkup interface{}) error {
	payload := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if replyMarkup != nil {
		payload["reply_markup"] = replyMarkup
	}
	return c.postJSON("sendMessage", payload)
}

// SendPhoto uploads raw image bytes as a photo with an optional HTML caption.
func (c *Client) SendPhoto(chatID int64, image []byte, caption string) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("chat_id", fmt.Sprintf("%d", chatID)); err != nil {
		return fmt.Errorf("failed to build photo request: %w", err)
	}
	if caption != "" {
		_ = writer.WriteField("caption", caption)
		_ = writer.WriteField("parse_mode", "HTML")
	}
	part, err := writer.CreateFormFile("photo", "qr.png")
	if err != nil {
		return fmt.Errorf("failed to build photo request: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("failed to build photo request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build photo request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/sendPhoto", body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// AnswerCallbackQuery acknowledges a button press so the client stops spinning.
func (c *Client) AnswerCallbackQuery(callbackID, text string) error {
	return c.postJSON("answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackID,
		"text":              text,
	})
}

// BestEffortSend sends a message and only logs on failure. Message loss is
// accepted on this path.
func (c *Client) BestEffortSend(chatID int64, text string, replyMarkup interface{}) {
	if err := c.SendMessage(chatID, text, replyMarkup); err != nil {
		logger.Warn().Int64("chat_id", chatID).Err(err).Msg("sendMessage failed")
	}
}

func (c *Client) postJSON(method string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !tgResp.Ok {
		return fmt.Errorf("telegram API error: %s", tgResp.Description)
	}
	return nil
}
