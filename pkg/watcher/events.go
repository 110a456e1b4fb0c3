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
	"sync"

	"github.com/teradata-labs/promptwatch/pkg/prompts"
	"go.uber.org/zap"
)

// ChangeEvent is the payload delivered when a refresh produced a non-empty
// diff. Previous and Current are copies; mutating them does not affect the
// session's held snapshot.
type ChangeEvent struct {
	Previous prompts.Snapshot
	Current  prompts.Snapshot
	Diff     *prompts.Diff
}

// Subscription identifies a registered handler so it can be removed.
// Handlers are funcs and funcs are not comparable in Go, so removal is by
// token rather than by handler identity.
type Subscription uint64

// Emitter is an in-memory, typed publish/subscribe registry for one event
// kind. Handlers run in registration order on the goroutine that calls Emit.
//
// Emit iterates a stable copy of the handler set taken at emit time, so a
// handler may deregister itself or any sibling mid-emission without skipping
// or double-invoking anyone. A panicking handler is recovered and logged and
// does not prevent the remaining handlers from running.
type Emitter[T any] struct {
	logger *zap.Logger

	mu       sync.Mutex
	nextID   Subscription
	handlers []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id   Subscription
	fn   func(T)
	once bool
}

// NewEmitter creates an emitter. A nil logger is replaced with a no-op.
func NewEmitter[T any](logger *zap.Logger) *Emitter[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter[T]{logger: logger}
}

// On registers a persistent handler and returns its subscription token.
func (e *Emitter[T]) On(fn func(T)) Subscription {
	return e.register(fn, false)
}

// Once registers a handler that is deregistered after its first invocation,
// even if the handler itself calls Off or panics during that invocation.
func (e *Emitter[T]) Once(fn func(T)) Subscription {
	return e.register(fn, true)
}

func (e *Emitter[T]) register(fn func(T), once bool) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, handlerEntry[T]{id: id, fn: fn, once: once})
	return id
}

// Off removes the handler registered under sub. Removing an unknown or
// already-removed subscription is a no-op.
func (e *Emitter[T]) Off(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, h := range e.handlers {
		if h.id == sub {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			return
		}
	}
}

// RemoveAll removes every registered handler.
func (e *Emitter[T]) RemoveAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = nil
}

// Len returns the number of currently registered handlers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// Emit invokes all currently registered handlers with payload, in
// registration order, on the calling goroutine.
func (e *Emitter[T]) Emit(payload T) {
	e.mu.Lock()
	snapshot := make([]handlerEntry[T], len(e.handlers))
	copy(snapshot, e.handlers)

	// One-shot handlers are deregistered before invocation so a reentrant
	// Off (or a panic) inside the handler cannot double-fire or leak them.
	kept := e.handlers[:0]
	for _, h := range e.handlers {
		if !h.once {
			kept = append(kept, h)
		}
	}
	e.handlers = kept
	e.mu.Unlock()

	for _, h := range snapshot {
		e.invoke(h, payload)
	}
}

func (e *Emitter[T]) invoke(h handlerEntry[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				zap.Uint64("subscription", uint64(h.id)),
				zap.Any("panic", r))
		}
	}()
	h.fn(payload)
}
