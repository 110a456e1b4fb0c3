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

import "time"

const (
	// maxBackoffDelay caps the effective delay regardless of multiplier.
	maxBackoffDelay = 5 * time.Minute

	// rateLimitMaxMultiplier caps the doubling applied on rate-limit errors.
	rateLimitMaxMultiplier = 16

	// transientThreshold is the consecutive-error count at which non-rate-limit
	// failures start enlarging the interval. Isolated blips carry no penalty.
	transientThreshold = 3

	// transientFactor and transientMaxMultiplier govern the gentler slowdown
	// for sustained non-rate-limit failures.
	transientFactor        = 1.5
	transientMaxMultiplier = 4
)

// backoff converts consecutive-failure history into a delay multiplier.
// It is owned by exactly one session and is not safe for shared use.
//
// Rate limiting is a hard signal and doubles the multiplier immediately;
// other categories are tolerated until they form a streak.
type backoff struct {
	consecutive   int
	multiplier    float64
	lastErrorAt   time.Time
	lastSuccessAt time.Time
}

func newBackoff() *backoff {
	return &backoff{multiplier: 1}
}

// onSuccess resets the streak and multiplier and records the success time.
func (b *backoff) onSuccess() {
	b.consecutive = 0
	b.multiplier = 1
	b.lastSuccessAt = time.Now()
}

// onError records a failure of the given category and returns the resulting
// multiplier.
func (b *backoff) onError(category Category) float64 {
	b.consecutive++
	b.lastErrorAt = time.Now()

	switch {
	case category == CategoryRateLimit:
		b.multiplier *= 2
		if b.multiplier > rateLimitMaxMultiplier {
			b.multiplier = rateLimitMaxMultiplier
		}
	case b.consecutive >= transientThreshold:
		b.multiplier *= transientFactor
		if b.multiplier > transientMaxMultiplier {
			b.multiplier = transientMaxMultiplier
		}
	}

	return b.multiplier
}

// nextDelay scales the base interval by the current multiplier, capped at
// maxBackoffDelay.
func (b *backoff) nextDelay(base time.Duration) time.Duration {
	delay := time.Duration(float64(base) * b.multiplier)
	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	return delay
}
