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
	"sync"
	"time"

	"github.com/teradata-labs/promptwatch/pkg/prompts"
	"github.com/teradata-labs/promptwatch/pkg/transport"
	"go.uber.org/zap"
)

// pollSession re-fetches the snapshot on a timer. One goroutine owns the
// whole cycle: wait, fetch, detect, emit, reschedule. At most one fetch is
// in flight at any time; the next cycle is scheduled only after the current
// one completes.
type pollSession struct {
	fetcher   transport.Fetcher
	projectID string
	fetchOpts transport.FetchOptions
	base      time.Duration
	logger    *zap.Logger

	changes *Emitter[ChangeEvent]
	errors  *Emitter[*ClassifiedError]

	mu        sync.RWMutex
	current   *prompts.Snapshot
	backoff   *backoff
	lastError *ClassifiedError
	active    bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

func startPollSession(opts Options) (*pollSession, error) {
	if opts.Fetcher == nil {
		return nil, newConfigurationError("fetcher", "nil", "a transport.Fetcher")
	}

	interval := opts.Interval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	if opts.AllowShortInterval {
		if interval <= 0 {
			return nil, newConfigurationError("poll", interval.Milliseconds(), "a positive interval")
		}
	} else if interval < MinPollInterval {
		return nil, newConfigurationError("poll",
			interval.Milliseconds(), MinPollInterval.Milliseconds())
	}

	s := &pollSession{
		fetcher:   opts.Fetcher,
		projectID: opts.ProjectID,
		fetchOpts: transport.FetchOptions{Version: opts.Version, Tag: opts.Tag},
		base:      interval,
		logger:    opts.Logger,
		changes:   NewEmitter[ChangeEvent](opts.Logger),
		errors:    NewEmitter[*ClassifiedError](opts.Logger),
		current:   opts.Initial,
		backoff:   newBackoff(),
		active:    true,
		stopCh:    make(chan struct{}),
	}

	if opts.OnChange != nil {
		s.changes.On(opts.OnChange)
	}
	if opts.OnError != nil {
		s.errors.On(opts.OnError)
	}

	s.logger.Debug("poll session started",
		zap.String("project_id", s.projectID),
		zap.Duration("interval", s.base))

	go s.loop()
	return s, nil
}

// loop is the session's single goroutine. It sleeps the backoff-scaled
// interval between cycles and exits as soon as Stop closes stopCh.
func (s *pollSession) loop() {
	for {
		s.mu.RLock()
		delay := s.backoff.nextDelay(s.base)
		s.mu.RUnlock()

		timer := time.NewTimer(delay)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		// Stop may have raced the timer firing.
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.cycle()
	}
}

// cycle performs one fetch/detect/emit pass. A fetch still in flight when
// Stop is called completes normally and has its result discarded.
func (s *pollSession) cycle() {
	snap, err := s.fetcher.FetchSnapshot(context.Background(), s.projectID, s.fetchOpts)

	select {
	case <-s.stopCh:
		return
	default:
	}

	if err != nil {
		s.handleFailure(err)
		return
	}
	s.handleSuccess(snap)
}

// handleSuccess adopts the candidate snapshot unconditionally and emits a
// change event only when the detector found a difference. Adopting an
// identical snapshot absorbs server-side touches without notifying.
func (s *pollSession) handleSuccess(snap *prompts.Snapshot) {
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

// handleFailure classifies the error, grows the backoff and reports. Runtime
// failures are never fatal; the loop reschedules with the enlarged delay.
func (s *pollSession) handleFailure(err error) {
	cerr := Classify(err)

	s.mu.Lock()
	s.backoff.onError(cerr.Category)
	cerr.ConsecutiveErrors = s.backoff.consecutive
	cerr.Multiplier = s.backoff.multiplier
	s.lastError = cerr
	nextDelay := s.backoff.nextDelay(s.base)
	s.mu.Unlock()

	s.logger.Warn("poll cycle failed",
		zap.String("project_id", s.projectID),
		zap.String("category", string(cerr.Category)),
		zap.Int("consecutive_errors", cerr.ConsecutiveErrors),
		zap.Duration("next_delay", nextDelay),
		zap.Error(err))

	if s.errors.Len() == 0 {
		// Failures must never be silent.
		s.logger.Warn("prompt sync error (no error handler registered)", zap.Error(cerr))
		return
	}
	s.errors.Emit(cerr)
}

// Current implements Session.
func (s *pollSession) Current() prompts.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Active implements Session.
func (s *pollSession) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Status implements Session.
func (s *pollSession) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Active:            s.active,
		Interval:          s.backoff.nextDelay(s.base),
		ConsecutiveErrors: s.backoff.consecutive,
		Multiplier:        s.backoff.multiplier,
		LastError:         s.lastError,
		LastSuccessAt:     s.backoff.lastSuccessAt,
		LastErrorAt:       s.backoff.lastErrorAt,
	}
}

// Stop implements Session. It takes effect before the next scheduled fetch
// fires and is safe to call repeatedly or from inside an event handler.
func (s *pollSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		s.logger.Debug("poll session stopped", zap.String("project_id", s.projectID))
	})
}

// Changes implements Session.
func (s *pollSession) Changes() *Emitter[ChangeEvent] { return s.changes }

// Errors implements Session.
func (s *pollSession) Errors() *Emitter[*ClassifiedError] { return s.errors }
