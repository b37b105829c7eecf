// Package telegram wraps the pieces of the Bot API the bot needs: a thin
// method-call client, the update loop, and result rendering.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Env selects the Bot API environment.
type Env int

const (
	EnvProd Env = iota
	EnvTest
)

// API errors carry the Bot API description so handlers can log it; they are
// never shown to end users.
type APIError struct {
	Method      string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %s", e.Method, e.Description)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string, env Env) *Client {
	baseURL := "https://api.telegram.org/bot" + apiKey + "/"
	if env == EnvTest {
		baseURL += "test/"
	}
	return &Client{
		baseURL: baseURL,
		// Long polls run up to 30s server-side; leave headroom.
		httpClient: &http.Client{Timeout: 50 * time.Second},
	}
}

// newTestClient points the client at a fake Bot API server.
func newTestClient(baseURL string) *Client {
	return &Client{baseURL: baseURL + "/", httpClient: &http.Client{Timeout: 5 * time.Second}}
}

type apiEnvelope[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description,omitempty"`
}

// call POSTs params to a Bot API method and decodes the result envelope.
func call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var zero T
	body, err := json.Marshal(params)
	if err != nil {
		return zero, fmt.Errorf("encoding %s params: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return zero, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !envelope.OK {
		return zero, &APIError{Method: method, Description: envelope.Description}
	}
	return envelope.Result, nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return call[*User](ctx, c, "getMe", struct{}{})
}

func (c *Client) GetUpdates(ctx context.Context, req *GetUpdatesRequest) ([]Update, error) {
	return call[[]Update](ctx, c, "getUpdates", req)
}

func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*Message, error) {
	return call[*Message](ctx, c, "sendMessage", req)
}

func (c *Client) EditMessageText(ctx context.Context, req *EditMessageTextRequest) (*Message, error) {
	return call[*Message](ctx, c, "editMessageText", req)
}

func (c *Client) DeleteMessage(ctx context.Context, req *DeleteMessageRequest) error {
	_, err := call[bool](ctx, c, "deleteMessage", req)
	return err
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, req *AnswerCallbackQueryRequest) error {
	_, err := call[bool](ctx, c, "answerCallbackQuery", req)
	return err
}
