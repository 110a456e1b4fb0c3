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
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/teradata-labs/promptwatch/pkg/prompts"
	"go.uber.org/zap"
	backoffv1 "gopkg.in/cenkalti/backoff.v1"
)

// defaultReconnectWait is a variable so tests can shorten the redial delay.
var defaultReconnectWait = reconnectDelay

// pushSession receives snapshots over one persistent SSE connection and
// redials after a fixed delay when the stream drops. Message handling runs
// the same detect/adopt/emit path as the poll session; the backoff multiplier
// does not apply because there is no base interval to scale.
type pushSession struct {
	streamURL string
	headers   map[string]string
	projectID string
	logger    *zap.Logger

	changes *Emitter[ChangeEvent]
	errors  *Emitter[*ClassifiedError]

	mu        sync.RWMutex
	current   *prompts.Snapshot
	backoff   *backoff
	lastError *ClassifiedError
	active    bool
	connected bool

	// reconnectWait is fixed in production; tests shorten it.
	reconnectWait time.Duration

	cancel   context.CancelFunc
	stopOnce sync.Once
	stopCh   chan struct{}
}

func startPushSession(opts Options) (*pushSession, error) {
	if opts.StreamURL == "" {
		return nil, newConfigurationError("streamUrl", `""`, "a non-empty SSE endpoint URL")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &pushSession{
		streamURL:     opts.StreamURL,
		headers:       opts.StreamHeaders,
		projectID:     opts.ProjectID,
		logger:        opts.Logger,
		changes:       NewEmitter[ChangeEvent](opts.Logger),
		errors:        NewEmitter[*ClassifiedError](opts.Logger),
		current:       opts.Initial,
		backoff:       newBackoff(),
		active:        true,
		reconnectWait: defaultReconnectWait,
		cancel:        cancel,
		stopCh:        make(chan struct{}),
	}

	if opts.OnChange != nil {
		s.changes.On(opts.OnChange)
	}
	if opts.OnError != nil {
		s.errors.On(opts.OnError)
	}

	s.logger.Debug("push session started",
		zap.String("project_id", s.projectID),
		zap.String("stream_url", s.streamURL))

	go s.run(ctx)
	return s, nil
}

// run owns the connection lifecycle: subscribe, drain messages, and on drop
// wait the fixed reconnect delay before redialing unless the session was
// stopped. This goroutine is the sole dialer, so no two reconnect attempts
// can race.
func (s *pushSession) run(ctx context.Context) {
	for {
		client := sse.NewClient(s.streamURL)
		for k, v := range s.headers {
			client.Headers[k] = v
		}
		// Reconnection is handled by this loop, not by the SSE client, so a
		// single failed attempt must surface instead of retrying internally.
		client.ReconnectStrategy = &backoffv1.StopBackOff{}
		// The client only invokes OnConnect after the first event arrives; a
		// freshly opened but quiet stream must already report connected, so
		// the handshake response is where the state flips.
		client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return fmt.Errorf("stream handshake failed: %s", resp.Status)
			}
			s.markConnected()
			return nil
		}

		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			if len(msg.Data) == 0 {
				return
			}
			s.handleMessage(msg.Data)
		})

		if s.stopped() {
			return
		}

		s.handleDisconnect(err)

		select {
		case <-s.stopCh:
			return
		case <-time.After(s.reconnectWait):
		}
	}
}

func (s *pushSession) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// markConnected records a healthy stream: success time refreshed, error
// streak and last error cleared.
func (s *pushSession) markConnected() {
	s.mu.Lock()
	s.connected = true
	s.backoff.onSuccess()
	s.lastError = nil
	s.mu.Unlock()

	s.logger.Debug("push stream connected", zap.String("project_id", s.projectID))
}

// handleMessage parses one pushed frame. A frame that does not parse is a
// transport error; the connection itself stays up.
func (s *pushSession) handleMessage(data []byte) {
	snap, err := prompts.ParseSnapshot(data)
	if err != nil {
		s.reportError(newNetworkError("failed to parse pushed snapshot", err))
		return
	}

	s.mu.Lock()
	prev := s.current
	diff := prompts.Detect(prev, snap)
	s.current = snap
	s.backoff.onSuccess()
	s.mu.Unlock()

	if diff.Empty() {
		return
	}

	s.logger.Debug("prompt changed",
		zap.String("project_id", s.projectID),
		zap.Int("version", snap.Version))

	s.changes.Emit(ChangeEvent{
		Previous: prev.Clone(),
		Current:  snap.Clone(),
		Diff:     diff,
	})
}

// handleDisconnect marks the stream down and reports it as a network error.
func (s *pushSession) handleDisconnect(err error) {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	s.logger.Warn("push stream disconnected",
		zap.String("project_id", s.projectID),
		zap.Duration("reconnect_in", s.reconnectWait),
		zap.Error(err))

	s.reportError(newNetworkError("push stream disconnected", err))
}

// reportError feeds the backoff state, stamps the streak counters onto the
// error and emits it, warning instead when nobody is listening.
func (s *pushSession) reportError(cerr *ClassifiedError) {
	s.mu.Lock()
	s.backoff.onError(cerr.Category)
	cerr.ConsecutiveErrors = s.backoff.consecutive
	cerr.Multiplier = s.backoff.multiplier
	s.lastError = cerr
	s.mu.Unlock()

	if s.errors.Len() == 0 {
		// Failures must never be silent.
		s.logger.Warn("prompt sync error (no error handler registered)", zap.Error(cerr))
		return
	}
	s.errors.Emit(cerr)
}

// Current implements Session.
func (s *pushSession) Current() prompts.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Active implements Session.
func (s *pushSession) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Status implements Session. Push sessions have no poll interval to scale,
// so Interval is always zero.
func (s *pushSession) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Active:            s.active,
		Connected:         s.connected,
		Interval:          0,
		ConsecutiveErrors: s.backoff.consecutive,
		Multiplier:        s.backoff.multiplier,
		LastError:         s.lastError,
		LastSuccessAt:     s.backoff.lastSuccessAt,
		LastErrorAt:       s.backoff.lastErrorAt,
	}
}

// Stop implements Session. It closes the active connection and suppresses
// further reconnect attempts.
func (s *pushSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()
		s.mu.Lock()
		s.active = false
		s.connected = false
		s.mu.Unlock()
		s.logger.Debug("push session stopped", zap.String("project_id", s.projectID))
	})
}

// Changes implements Session.
func (s *pushSession) Changes() *Emitter[ChangeEvent] { return s.changes }

// Errors implements Session.
func (s *pushSession) Errors() *Emitter[*ClassifiedError] { return s.errors }
