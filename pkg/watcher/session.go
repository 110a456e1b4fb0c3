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
// Package watcher keeps a locally held prompt snapshot synchronized with the
// remote source of truth and notifies subscribers when it changes.
//
// Two session strategies share one contract: a poll session re-fetches on a
// timer scaled by error backoff, and a push session holds a persistent SSE
// connection and reconnects on drop. Either way the session adopts every
// successfully obtained snapshot and emits a change event only when the
// change detector found a real difference.
//
// Example usage:
//
//	fetcher, _ := transport.NewHTTPFetcher(transport.HTTPConfig{BaseURL: server, APIKey: key})
//	initial, _ := fetcher.FetchSnapshot(ctx, "proj-42", transport.FetchOptions{})
//
//	session, err := watcher.Start(watcher.Options{
//	    Mode:      watcher.ModePoll,
//	    Fetcher:   fetcher,
//	    ProjectID: "proj-42",
//	    Initial:   initial,
//	    Interval:  30 * time.Second,
//	})
//	if err != nil { ... }
//	defer session.Stop()
//
//	session.Changes().On(func(ev watcher.ChangeEvent) {
//	    log.Printf("prompt now at version %d", ev.Current.Version)
//	})
package watcher

import (
	"time"

	"github.com/teradata-labs/promptwatch/pkg/prompts"
	"github.com/teradata-labs/promptwatch/pkg/transport"
	"go.uber.org/zap"
)

// Mode selects the synchronization strategy. It is fixed at construction;
// there is no runtime switching between strategies.
type Mode int

const (
	// ModePoll re-fetches the snapshot on a timer.
	ModePoll Mode = iota
	// ModePush receives snapshots over a persistent SSE connection.
	ModePush
)

const (
	// MinPollInterval is the floor enforced on poll intervals unless the
	// caller opts out with AllowShortInterval.
	MinPollInterval = 5 * time.Second

	// DefaultPollInterval is used when Options.Interval is zero.
	DefaultPollInterval = 30 * time.Second

	// reconnectDelay is the fixed wait before a push session redials a
	// dropped stream.
	reconnectDelay = 5 * time.Second
)

// Session is the shared contract of both synchronization strategies.
type Session interface {
	// Current returns a defensive copy of the currently held snapshot.
	Current() prompts.Snapshot

	// Active reports whether the session is still running (not stopped).
	Active() bool

	// Status returns a read-only view of the session's sync state.
	Status() Status

	// Stop cancels any pending timer, closes any open connection and
	// suppresses further cycles. It is idempotent and safe to call from
	// inside an event handler. An in-flight fetch is not interrupted; its
	// result is discarded.
	Stop()

	// Changes is the emitter for change events.
	Changes() *Emitter[ChangeEvent]

	// Errors is the emitter for classified sync errors.
	Errors() *Emitter[*ClassifiedError]
}

// Status is a point-in-time view of a session's synchronization state.
type Status struct {
	// Active reports whether the session is running.
	Active bool
	// Connected reports whether a push session currently holds an open
	// stream. Always false for poll sessions.
	Connected bool
	// Interval is the current effective poll interval (base scaled by the
	// backoff multiplier). Zero for push sessions.
	Interval time.Duration
	// ConsecutiveErrors is the current error streak length.
	ConsecutiveErrors int
	// Multiplier is the current backoff multiplier (>= 1).
	Multiplier float64
	// LastError is the most recent classified error, nil after a clean run.
	LastError *ClassifiedError
	// LastSuccessAt and LastErrorAt record the most recent outcomes.
	LastSuccessAt time.Time
	LastErrorAt   time.Time
}

// Options configures a session. Mode selects the strategy; the remaining
// fields apply as documented per field.
type Options struct {
	// Mode selects polling or push. Default is ModePoll.
	Mode Mode

	// Fetcher retrieves snapshots. Required for ModePoll.
	Fetcher transport.Fetcher

	// ProjectID identifies the prompt record to synchronize. Required.
	ProjectID string

	// Initial is the already-fetched starting snapshot. Required.
	Initial *prompts.Snapshot

	// Version and Tag pin fetches to a specific prompt version or tag.
	// Zero values mean "latest".
	Version int
	Tag     string

	// Interval is the base poll interval for ModePoll. Defaults to
	// DefaultPollInterval. Ignored by ModePush.
	Interval time.Duration

	// AllowShortInterval disables the MinPollInterval floor, accepting any
	// positive interval. Intended for tests and aggressive local use.
	AllowShortInterval bool

	// StreamURL is the SSE endpoint for ModePush. Required for ModePush.
	StreamURL string

	// StreamHeaders are sent when opening the push stream (e.g. auth).
	StreamHeaders map[string]string

	// OnChange and OnError, when set, are registered as initial handlers
	// before the first cycle runs.
	OnChange func(ChangeEvent)
	OnError  func(*ClassifiedError)

	// Logger receives session diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Start validates opts, selects the strategy and begins synchronizing.
//
// Construction-time misconfiguration (missing snapshot, interval below the
// floor, missing stream URL) is fatal and returned synchronously as a
// configuration-category *ClassifiedError; it is never retried. Runtime
// transport failures are never fatal: they are classified, backed off and
// reported, and the session keeps running until Stop.
func Start(opts Options) (Session, error) {
	if opts.Initial == nil {
		return nil, newConfigurationError("initial", "nil", "a fetched snapshot")
	}
	if opts.ProjectID == "" {
		return nil, newConfigurationError("projectId", `""`, "a non-empty project id")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	switch opts.Mode {
	case ModePoll:
		return startPollSession(opts)
	case ModePush:
		return startPushSession(opts)
	default:
		return nil, newConfigurationError("mode", int(opts.Mode), "ModePoll or ModePush")
	}
}
