// Package bot is the Telegram chat surface: a minimal Bot API client and an
// update dispatcher that drives the conversation engine.
package bot

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
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// TelegramClient talks to the Telegram Bot API over HTTP. Long polling is
// used for updates, so the request timeout must exceed the poll timeout.
type TelegramClient struct {
	baseURL     string
	token       string
	pollTimeout time.Duration
	client      *http.Client
}

func NewTelegramClient(baseURL, token string, pollTimeout time.Duration) (*TelegramClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("telegram base url is required")
	}
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &TelegramClient{
		baseURL:     baseURL,
		token:       token,
		pollTimeout: pollTimeout,
		client:      &http.Client{Timeout: pollTimeout + 10*time.Second},
	}, nil
}

func (t *TelegramClient) GetMe(ctx context.Context) (User, error) {
	var user User
	if err := t.call(ctx, http.MethodGet, "getMe", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// GetUpdates long-polls for updates after the given offset.
func (t *TelegramClient) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.FormatInt(int64(t.pollTimeout/time.Second), 10))
	if offset != 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	var updates []Update
	if err := t.call(ctx, http.MethodGet, "getUpdates?"+params.Encode(), nil, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (t *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	return t.call(ctx, http.MethodPost, "sendMessage", payload, nil)
}

func (t *TelegramClient) call(ctx context.Context, method, endpoint string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", endpoint, err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, t.baseURL+"/bot"+t.token+"/"+endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := t.client.Do(request)
	if err != nil {
		return fmt.Errorf("call telegram %s: %w", endpoint, err)
	}
	defer func() { _ = response.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read telegram %s response: %w", endpoint, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode telegram %s response: %w", endpoint, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s failed: %s", endpoint, envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode telegram %s result: %w", endpoint, err)
		}
	}
	return nil
}
