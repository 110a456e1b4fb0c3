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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/promptwatch/pkg/prompts"
	"github.com/teradata-labs/promptwatch/pkg/transport"
)

// fetcherFunc adapts a function to the transport.Fetcher interface.
type fetcherFunc func(ctx context.Context, projectID string, opts transport.FetchOptions) (*prompts.Snapshot, error)

func (f fetcherFunc) FetchSnapshot(ctx context.Context, projectID string, opts transport.FetchOptions) (*prompts.Snapshot, error) {
	return f(ctx, projectID, opts)
}

// stubFetcher returns queued results in order; the last one repeats forever.
type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	results []fetchResult
}

type fetchResult struct {
	snap *prompts.Snapshot
	err  error
}

func (f *stubFetcher) FetchSnapshot(ctx context.Context, projectID string, opts transport.FetchOptions) (*prompts.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++

	r := f.results[idx]
	return r.snap, r.err
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func snapshotV(version int, content string) *prompts.Snapshot {
	return &prompts.Snapshot{
		ID:          "prompt-1",
		Version:     version,
		Content:     content,
		Temperature: 0.7,
		UpdatedAt:   time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC).Add(time.Duration(version) * time.Hour),
		Model:       prompts.ModelInfo{Provider: "anthropic", Model: "claude-sonnet-4-5"},
	}
}

func startTestPoll(t *testing.T, opts Options) Session {
	t.Helper()
	if opts.ProjectID == "" {
		opts.ProjectID = "proj-1"
	}
	if opts.Interval == 0 {
		opts.Interval = 10 * time.Millisecond
		opts.AllowShortInterval = true
	}
	session, err := Start(opts)
	require.NoError(t, err)
	t.Cleanup(session.Stop)
	return session
}

func TestStartRejectsIntervalBelowFloor(t *testing.T) {
	_, err := Start(Options{
		Fetcher:   &stubFetcher{results: []fetchResult{{snap: snapshotV(1, "A")}}},
		ProjectID: "proj-1",
		Initial:   snapshotV(1, "A"),
		Interval:  time.Second,
	})
	require.Error(t, err)

	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CategoryConfiguration, cerr.Category)
	assert.Contains(t, cerr.Error(), `"poll"`)
	assert.Contains(t, cerr.Error(), "1000")
	assert.Contains(t, cerr.Error(), "5000")
}

func TestStartAcceptsShortIntervalWhenAllowed(t *testing.T) {
	session := startTestPoll(t, Options{
		Fetcher:            &stubFetcher{results: []fetchResult{{snap: snapshotV(1, "A")}}},
		Initial:            snapshotV(1, "A"),
		Interval:           time.Second,
		AllowShortInterval: true,
	})

	status := session.Status()
	assert.True(t, status.Active)
	assert.Equal(t, time.Second, status.Interval, "no backoff yet, interval is the base")
	assert.Equal(t, 1.0, status.Multiplier)
}

func TestStartRejectsMissingInitial(t *testing.T) {
	_, err := Start(Options{Fetcher: &stubFetcher{}, ProjectID: "proj-1"})
	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CategoryConfiguration, cerr.Category)
}

func TestStartRejectsMissingFetcher(t *testing.T) {
	_, err := Start(Options{ProjectID: "proj-1", Initial: snapshotV(1, "A")})
	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CategoryConfiguration, cerr.Category)
}

func TestPollEmitsChangeOnNewVersion(t *testing.T) {
	fetcher := &stubFetcher{results: []fetchResult{{snap: snapshotV(2, "B")}}}
	changeCh := make(chan ChangeEvent, 8)

	session := startTestPoll(t, Options{
		Fetcher: fetcher,
		Initial: snapshotV(1, "A"),
		OnChange: func(ev ChangeEvent) {
			changeCh <- ev
		},
	})

	var ev ChangeEvent
	select {
	case ev = <-changeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no change event within deadline")
	}

	require.NotNil(t, ev.Diff)
	require.NotNil(t, ev.Diff.Version)
	assert.Equal(t, 1, ev.Diff.Version.From)
	assert.Equal(t, 2, ev.Diff.Version.To)
	require.NotNil(t, ev.Diff.Content)
	assert.Equal(t, "A", ev.Diff.Content.From)
	assert.Equal(t, "B", ev.Diff.Content.To)
	assert.Equal(t, 1, ev.Previous.Version)
	assert.Equal(t, 2, ev.Current.Version)
	assert.Equal(t, 2, session.Current().Version)

	// The fetcher keeps returning the same snapshot; no further events.
	require.Eventually(t, func() bool { return fetcher.callCount() >= 3 },
		2*time.Second, 5*time.Millisecond)
	select {
	case extra := <-changeCh:
		t.Fatalf("unexpected extra change event: %+v", extra)
	default:
	}
}

// An identical refetch is adopted silently: no event, but the newly fetched
// object becomes current (observable through a field the detector ignores).
func TestPollIdenticalSnapshotAdoptedWithoutEvent(t *testing.T) {
	refetched := snapshotV(1, "A")
	refetched.Model.Icon = "new-icon.svg"
	fetcher := &stubFetcher{results: []fetchResult{{snap: refetched}}}

	var changeCount int
	var mu sync.Mutex
	session := startTestPoll(t, Options{
		Fetcher: fetcher,
		Initial: snapshotV(1, "A"),
		OnChange: func(ChangeEvent) {
			mu.Lock()
			changeCount++
			mu.Unlock()
		},
	})

	require.Eventually(t, func() bool { return fetcher.callCount() >= 2 },
		2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, changeCount)
	mu.Unlock()
	assert.Equal(t, "new-icon.svg", session.Current().Model.Icon,
		"the refetched object must replace the stale one")
}

func TestPollOnceHandlerFiresOnceAcrossTwoChanges(t *testing.T) {
	// Every fetch is a distinct version, so changes keep firing no matter
	// when the handlers register relative to the first poll.
	var version int32 = 1
	fetcher := fetcherFunc(func(context.Context, string, transport.FetchOptions) (*prompts.Snapshot, error) {
		v := int(atomic.AddInt32(&version, 1))
		return snapshotV(v, "content"), nil
	})

	var mu sync.Mutex
	var onceCalls, onCalls int
	session := startTestPoll(t, Options{
		Fetcher: fetcher,
		Initial: snapshotV(1, "A"),
	})
	session.Changes().Once(func(ChangeEvent) {
		mu.Lock()
		onceCalls++
		mu.Unlock()
	})
	session.Changes().On(func(ChangeEvent) {
		mu.Lock()
		onCalls++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return onCalls >= 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, onceCalls)
	mu.Unlock()
}

func TestStopPreventsAnyFetch(t *testing.T) {
	fetcher := &stubFetcher{results: []fetchResult{{snap: snapshotV(2, "B")}}}

	session := startTestPoll(t, Options{
		Fetcher: fetcher,
		Initial: snapshotV(1, "A"),
	})
	session.Stop()

	assert.False(t, session.Active())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount())
	assert.Equal(t, 1, session.Current().Version)
}

func TestStopIsIdempotentAndSafeFromHandler(t *testing.T) {
	// Every fetch yields a new version so a change fires on each cycle until
	// the handler stops the session.
	var version int32 = 1
	fetcher := fetcherFunc(func(context.Context, string, transport.FetchOptions) (*prompts.Snapshot, error) {
		v := int(atomic.AddInt32(&version, 1))
		return snapshotV(v, "content"), nil
	})
	done := make(chan struct{})
	var once sync.Once

	session := startTestPoll(t, Options{
		Fetcher: fetcher,
		Initial: snapshotV(1, "A"),
	})
	session.Changes().On(func(ChangeEvent) {
		session.Stop()
		session.Stop()
		once.Do(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("change handler never ran")
	}
	assert.False(t, session.Active())

	calls := atomic.LoadInt32(&version)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&version), "no fetches after Stop")
}

func TestPollErrorClassifiedBackedOffAndReported(t *testing.T) {
	fetcher := &stubFetcher{results: []fetchResult{{err: &transport.APIError{Status: 429}}}}
	errCh := make(chan *ClassifiedError, 8)

	session := startTestPoll(t, Options{
		Fetcher: fetcher,
		Initial: snapshotV(1, "A"),
		OnError: func(cerr *ClassifiedError) {
			errCh <- cerr
		},
	})

	first := <-errCh
	assert.Equal(t, CategoryRateLimit, first.Category)
	assert.Equal(t, 1, first.ConsecutiveErrors)
	assert.Equal(t, 2.0, first.Multiplier)

	second := <-errCh
	assert.Equal(t, 2, second.ConsecutiveErrors)
	assert.Equal(t, 4.0, second.Multiplier)

	status := session.Status()
	assert.True(t, status.Active, "transport failures never stop the session")
	assert.GreaterOrEqual(t, status.ConsecutiveErrors, 2)
	require.NotNil(t, status.LastError)
	assert.Equal(t, CategoryRateLimit, status.LastError.Category)
	assert.False(t, status.LastErrorAt.IsZero())
}

func TestPollRecoversAfterErrors(t *testing.T) {
	fetcher := &stubFetcher{results: []fetchResult{
		{err: &transport.ConnectionError{Cause: assert.AnError}},
		{err: &transport.ConnectionError{Cause: assert.AnError}},
		{snap: snapshotV(2, "B")},
	}}
	changeCh := make(chan ChangeEvent, 1)

	session := startTestPoll(t, Options{
		Fetcher:  fetcher,
		Initial:  snapshotV(1, "A"),
		OnChange: func(ev ChangeEvent) { changeCh <- ev },
	})

	select {
	case <-changeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not recover from transient errors")
	}

	status := session.Status()
	assert.Equal(t, 0, status.ConsecutiveErrors)
	assert.Equal(t, 1.0, status.Multiplier)
	assert.False(t, status.LastSuccessAt.IsZero())
}

func TestPollStatusIntervalReflectsBackoff(t *testing.T) {
	fetcher := &stubFetcher{results: []fetchResult{{err: &transport.APIError{Status: 429}}}}
	errCh := make(chan *ClassifiedError, 8)

	session := startTestPoll(t, Options{
		Fetcher:            fetcher,
		Initial:            snapshotV(1, "A"),
		Interval:           20 * time.Millisecond,
		AllowShortInterval: true,
		OnError:            func(cerr *ClassifiedError) { errCh <- cerr },
	})

	<-errCh
	status := session.Status()
	assert.GreaterOrEqual(t, status.Interval, 40*time.Millisecond,
		"one rate-limit error doubles the effective interval")
}
