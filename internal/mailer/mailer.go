// Package mailer sends transactional email through the HTTP mail API.
// Callers treat sends as fire-and-forget: failures are logged, not retried.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	BaseURL    string
	APIKey     string
	From       string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey, from string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		From:    from,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	data, err := json.Marshal(sendRequest{
		To:      to,
		From:    c.From,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("mailer: marshal failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mailer: send returned %d: %s", resp.StatusCode, body)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("mailer: decoding response: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("mailer: send rejected: %s", out.Error)
	}
	return nil
}
