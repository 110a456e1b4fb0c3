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
package watcher

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/teradata-labs/promptwatch/pkg/transport"
)

// Category is the stable classification of a sync failure. Categories drive
// backoff policy and are part of the error event payload, so their string
// values are a compatibility surface.
type Category string

const (
	// CategoryRateLimit is an HTTP 429 from the prompt service.
	CategoryRateLimit Category = "rate_limit"
	// CategoryAuthentication is an HTTP 401.
	CategoryAuthentication Category = "authentication"
	// CategoryAPI is any other non-2xx response.
	CategoryAPI Category = "api"
	// CategoryNetwork is a failure before a response was obtained, or a
	// failure of the push stream (disconnect, unparseable frame).
	CategoryNetwork Category = "network"
	// CategoryConfiguration is an invalid construction argument. It is
	// raised synchronously from Start and never retried.
	CategoryConfiguration Category = "configuration"
	// CategoryUnknown is anything the classifier could not place.
	CategoryUnknown Category = "unknown"
)

// ClassifiedError is a transport failure normalized to a fixed category,
// carrying a copy of the owning session's error-streak counters at the time
// it occurred. ClassifiedErrors are constructed fresh per failure and never
// mutated afterwards.
type ClassifiedError struct {
	Category Category
	Message  string
	Status   int   // HTTP status when one was observed, else 0
	Cause    error // wrapped underlying error, may be nil

	// Streak counters copied from the session's backoff state when the
	// error occurred.
	ConsecutiveErrors int
	Multiplier        float64
}

func (e *ClassifiedError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Category, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Classify normalizes a transport failure into a ClassifiedError. The streak
// counter fields are filled in by the session after it updates its backoff
// state.
func Classify(err error) *ClassifiedError {
	var authErr *transport.AuthenticationError
	if errors.As(err, &authErr) {
		return &ClassifiedError{
			Category: CategoryAuthentication,
			Message:  "authentication failed",
			Status:   authErr.Status,
			Cause:    err,
		}
	}

	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests {
			return &ClassifiedError{
				Category: CategoryRateLimit,
				Message:  "rate limited by prompt service",
				Status:   apiErr.Status,
				Cause:    err,
			}
		}
		return &ClassifiedError{
			Category: CategoryAPI,
			Message:  "prompt service returned an error",
			Status:   apiErr.Status,
			Cause:    err,
		}
	}

	var connErr *transport.ConnectionError
	if errors.As(err, &connErr) {
		return &ClassifiedError{
			Category: CategoryNetwork,
			Message:  err.Error(),
			Cause:    err,
		}
	}

	return &ClassifiedError{
		Category: CategoryUnknown,
		Message:  err.Error(),
		Cause:    err,
	}
}

// newNetworkError builds a network-category error for push-stream failures,
// which never carry an HTTP status.
func newNetworkError(msg string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Category: CategoryNetwork,
		Message:  msg,
		Cause:    cause,
	}
}

// newConfigurationError reports an invalid construction argument. The message
// names the offending parameter, the provided value and the expected value so
// misconfiguration is diagnosable from the error alone.
func newConfigurationError(param string, provided, expected any) *ClassifiedError {
	return &ClassifiedError{
		Category: CategoryConfiguration,
		Message: fmt.Sprintf("invalid %q parameter: got %v, expected %v",
			param, provided, expected),
	}
}
