// Copyright 2025 The Scout Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook delivers finished briefings to the configured endpoint,
// signing each payload so receivers can verify origin.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/httpclient"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the request body,
// keyed by the shared webhook secret.
const SignatureHeader = "X-Scout-Signature"

// Delivery is the payload posted for one finished briefing.
type Delivery struct {
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Email          string    `json:"email,omitempty"`
	Topic          string    `json:"topic"`
	StrategySlug   string    `json:"strategy_slug"`
	Subject        string    `json:"subject"`
	Markdown       string    `json:"markdown"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Client posts signed deliveries to the webhook URL.
type Client struct {
	url    string
	secret string
	http   *httpclient.Client
}

// New builds a webhook client from configuration. Returns nil when no URL
// is configured; a nil client drops deliveries.
func New(cfg config.WebhookConfig) *Client {
	if cfg.URL == "" {
		return nil
	}
	return &Client{
		url:    cfg.URL,
		secret: cfg.Secret,
		http: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.Timeout) * time.Second),
		),
	}
}

// Deliver posts one briefing. Failures are returned, not retried beyond the
// HTTP client's own retry budget; the batch runner records them per run.
func (c *Client) Deliver(ctx context.Context, d *Delivery) error {
	if c == nil {
		return nil
	}
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(SignatureHeader, Sign(c.secret, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret. Receivers use
// this; it compares in constant time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
