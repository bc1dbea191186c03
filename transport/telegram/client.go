// Package telegram is the outbound delivery transport: a minimal Bot API
// client implementing the notifier's Sender interface.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gridalert/services/notifier"
)

const apiBaseURL = "https://api.telegram.org"

// Client sends messages through the Telegram Bot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a Bot API client.
func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    apiBaseURL,
		token:      token,
	}
}

// NewClientWithBase creates a client against a custom base URL. Used by tests.
func NewClientWithBase(baseURL, token string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ReplyMarkup *inlineKeyboard `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers one message to one chat. Buttons become one inline button per
// row, matching the layouts the notifier produces.
func (c *Client) Send(ctx context.Context, userID int64, msg notifier.Message) error {
	payload := sendMessageRequest{
		ChatID: userID,
		Text:   msg.Text,
	}
	if len(msg.Buttons) > 0 {
		kb := &inlineKeyboard{}
		for _, b := range msg.Buttons {
			kb.InlineKeyboard = append(kb.InlineKeyboard, []inlineButton{{
				Text:         b.Text,
				CallbackData: b.Callback,
			}})
		}
		payload.ReplyMarkup = kb
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendMessage: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send to chat %d: %w", userID, err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&api); err != nil {
		return fmt.Errorf("decode response for chat %d: %w", userID, err)
	}
	if !api.OK {
		return fmt.Errorf("send to chat %d rejected: %s", userID, api.Description)
	}
	return nil
}
