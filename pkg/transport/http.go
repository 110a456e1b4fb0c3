// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/promptwatch/pkg/prompts"
	"go.uber.org/zap"
)

// HTTPConfig configures an HTTPFetcher.
type HTTPConfig struct {
	BaseURL string            // Server base URL, e.g. "https://api.example.com/v1"
	APIKey  string            // Bearer token sent on every request
	Headers map[string]string // Extra headers (optional)
	Client  *http.Client      // HTTP client (optional, default 10s timeout)
	Logger  *zap.Logger       // Logger (optional)
}

// HTTPFetcher implements Fetcher over the prompt service's REST API.
type HTTPFetcher struct {
	baseURL string
	apiKey  string
	headers map[string]string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPFetcher creates a fetcher for the given server.
func NewHTTPFetcher(config HTTPConfig) (*HTTPFetcher, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("transport: BaseURL is required")
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPFetcher{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		headers: config.Headers,
		client:  client,
		logger:  logger,
	}, nil
}

// FetchSnapshot implements Fetcher.
func (f *HTTPFetcher) FetchSnapshot(ctx context.Context, projectID string, opts FetchOptions) (*prompts.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/prompt", f.baseURL, url.PathEscape(projectID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ConnectionError{Cause: err}
	}

	q := req.URL.Query()
	if opts.Version > 0 {
		q.Set("version", strconv.Itoa(opts.Version))
	}
	if opts.Tag != "" {
		q.Set("tag", opts.Tag)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	f.logger.Debug("fetching snapshot",
		zap.String("project_id", projectID),
		zap.Int("version", opts.Version),
		zap.String("tag", opts.Tag))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthenticationError{Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var snap prompts.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, &ConnectionError{Cause: fmt.Errorf("failed to decode snapshot response: %w", err)}
	}

	f.logger.Debug("fetched snapshot",
		zap.String("id", snap.ID),
		zap.Int("version", snap.Version))

	return &snap, nil
}

// StreamURL returns the SSE endpoint for the given project, suitable for a
// push session.
func (f *HTTPFetcher) StreamURL(projectID string) string {
	return fmt.Sprintf("%s/projects/%s/prompt/stream", f.baseURL, url.PathEscape(projectID))
}

// StreamHeaders returns the headers a push session should send when opening
// the stream (auth plus any extra configured headers).
func (f *HTTPFetcher) StreamHeaders() map[string]string {
	headers := make(map[string]string, len(f.headers)+1)
	for k, v := range f.headers {
		headers[k] = v
	}
	if f.apiKey != "" {
		headers["Authorization"] = "Bearer " + f.apiKey
	}
	return headers
}
