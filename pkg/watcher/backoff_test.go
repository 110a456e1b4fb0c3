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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffStartsNeutral(t *testing.T) {
	b := newBackoff()
	assert.Equal(t, 0, b.consecutive)
	assert.Equal(t, 1.0, b.multiplier)
	assert.Equal(t, 30*time.Second, b.nextDelay(30*time.Second))
}

// N consecutive rate-limit errors must yield min(2^N, 16).
func TestBackoffRateLimitDoubling(t *testing.T) {
	b := newBackoff()
	for n := 1; n <= 8; n++ {
		got := b.onError(CategoryRateLimit)
		want := math.Min(math.Pow(2, float64(n)), 16)
		assert.Equal(t, want, got, "after %d rate-limit errors", n)
		assert.Equal(t, n, b.consecutive)
	}
}

// Non-rate-limit errors carry no penalty until they form a streak of three.
func TestBackoffTransientTolerance(t *testing.T) {
	b := newBackoff()

	assert.Equal(t, 1.0, b.onError(CategoryNetwork))
	assert.Equal(t, 1.0, b.onError(CategoryAPI))

	assert.Equal(t, 1.5, b.onError(CategoryNetwork))
	assert.Equal(t, 2.25, b.onError(CategoryNetwork))
	assert.Equal(t, 3.375, b.onError(CategoryNetwork))

	// Capped at 4.
	assert.Equal(t, 4.0, b.onError(CategoryNetwork))
	assert.Equal(t, 4.0, b.onError(CategoryNetwork))
}

func TestBackoffSuccessResets(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 5; i++ {
		b.onError(CategoryRateLimit)
	}
	assert.Equal(t, 16.0, b.multiplier)

	b.onSuccess()
	assert.Equal(t, 0, b.consecutive)
	assert.Equal(t, 1.0, b.multiplier)
	assert.False(t, b.lastSuccessAt.IsZero())
}

func TestBackoffNextDelayScalesAndCaps(t *testing.T) {
	b := newBackoff()
	b.onError(CategoryRateLimit)
	b.onError(CategoryRateLimit)
	assert.Equal(t, 4.0, b.multiplier)
	assert.Equal(t, 2*time.Minute, b.nextDelay(30*time.Second))

	// 16 x 30s would be 8 minutes; capped at 5.
	for i := 0; i < 3; i++ {
		b.onError(CategoryRateLimit)
	}
	assert.Equal(t, 16.0, b.multiplier)
	assert.Equal(t, 5*time.Minute, b.nextDelay(30*time.Second))
}

func TestBackoffMixedCategories(t *testing.T) {
	b := newBackoff()
	b.onError(CategoryNetwork)   // streak 1, x1
	b.onError(CategoryRateLimit) // streak 2, doubles
	assert.Equal(t, 2.0, b.multiplier)
	b.onError(CategoryNetwork) // streak 3, x1.5
	assert.Equal(t, 3.0, b.multiplier)
}
