// Package playground is a client for the Rust playground's execution and
// gist endpoints.
package playground

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrTimeout is returned when the playground did not answer within the
// client timeout. Other transport failures are reported as request errors.
var ErrTimeout = errors.New("playground timeout")

const defaultTimeout = 60 * time.Second

// ExecuteResult is the outcome of one playground run. A failed compilation
// is still a successful call; ResultSuccess is false and the diagnostics are
// in ResultStderr.
type ExecuteResult struct {
	ResultSuccess    bool
	ResultCode       string
	ResultExitDetail string
	ResultStdout     string
	ResultStderr     string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// RunCode executes code on the playground. Both calls on this client are
// idempotent and side-effect free from the caller's point of view.
func (c *Client) RunCode(ctx context.Context, code, channel, mode, edition string) (*ExecuteResult, error) {
	req := struct {
		Channel   string `json:"channel"`
		Mode      string `json:"mode"`
		Edition   string `json:"edition"`
		CrateType string `json:"crateType"`
		Tests     bool   `json:"tests"`
		Code      string `json:"code"`
	}{
		Channel:   channel,
		Mode:      mode,
		Edition:   edition,
		CrateType: "bin",
		Tests:     false,
		Code:      code,
	}
	var resp struct {
		Success    bool   `json:"success"`
		ExitDetail string `json:"exitDetail"`
		Stdout     string `json:"stdout"`
		Stderr     string `json:"stderr"`
	}
	if err := c.post(ctx, "/execute", req, &resp); err != nil {
		return nil, err
	}
	return &ExecuteResult{
		ResultSuccess:    resp.Success,
		ResultExitDetail: resp.ExitDetail,
		ResultStdout:     resp.Stdout,
		ResultStderr:     resp.Stderr,
	}, nil
}

// GenerateLink creates a gist for code and returns a permalink that opens
// the playground with the same channel, mode, and edition.
func (c *Client) GenerateLink(ctx context.Context, code, channel, mode, edition string) (string, error) {
	req := struct {
		Code string `json:"code"`
	}{Code: code}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/meta/gist", req, &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"https://play.rust-lang.org/?version=%s&mode=%s&edition=%s&gist=%s",
		channel, mode, edition, resp.ID,
	), nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return ErrTimeout
		}
		return fmt.Errorf("playground request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("playground request: unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
