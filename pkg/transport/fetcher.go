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
// Package transport fetches prompt snapshots from the remote source of truth.
//
// The sync sessions consume the Fetcher interface only; HTTPFetcher is the
// production implementation. Failures follow a small fixed taxonomy so the
// watcher layer can classify them without inspecting transport internals:
//
//   - *AuthenticationError: the server rejected the credentials (HTTP 401)
//   - *APIError: any other non-2xx response
//   - *ConnectionError: a network-level failure before a response was obtained
package transport

import (
	"context"
	"fmt"

	"github.com/teradata-labs/promptwatch/pkg/prompts"
)

// FetchOptions narrows a fetch to a specific prompt version or tag.
// Zero values mean "latest".
type FetchOptions struct {
	Version int
	Tag     string
}

// Fetcher retrieves the current snapshot of a prompt.
type Fetcher interface {
	// FetchSnapshot fetches the snapshot for projectID, optionally pinned to
	// a version or tag. It returns one of the taxonomy errors above on
	// failure; it never returns a nil snapshot with a nil error.
	FetchSnapshot(ctx context.Context, projectID string, opts FetchOptions) (*prompts.Snapshot, error)
}

// AuthenticationError reports rejected credentials.
type AuthenticationError struct {
	Status int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (HTTP %d)", e.Status)
}

// APIError reports a non-2xx response other than an authentication failure.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Body)
}

// ConnectionError reports a network-level failure before any response
// was obtained.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}
