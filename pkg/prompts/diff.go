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
package prompts

import "time"

// FieldChange records the old and new value of a single snapshot field.
type FieldChange[T any] struct {
	From T `json:"from"`
	To   T `json:"to"`
}

// Diff describes which fields changed between two snapshots. Only fields
// that actually differ are populated.
//
// An updatedAt-only difference is still a diff: a server-side touch with no
// content change is observable behavior and is reported as such.
type Diff struct {
	Version     *FieldChange[int]       `json:"version,omitempty"`
	Content     *FieldChange[string]    `json:"content,omitempty"`
	Temperature *FieldChange[float64]   `json:"temperature,omitempty"`
	Tag         *FieldChange[*string]   `json:"tag,omitempty"`
	UpdatedAt   *FieldChange[time.Time] `json:"updatedAt,omitempty"`
}

// Empty reports whether no compared field differs.
func (d *Diff) Empty() bool {
	return d == nil ||
		(d.Version == nil && d.Content == nil && d.Temperature == nil &&
			d.Tag == nil && d.UpdatedAt == nil)
}

// Detect compares two snapshots and returns the set of differing fields, or
// nil when the snapshots are equal on every compared field.
//
// Exactly five fields participate: version, content, temperature, tag and
// updatedAt. ID and model descriptor are stable per session and are never
// compared. Detect is pure and safe to call from any goroutine.
func Detect(prev, next *Snapshot) *Diff {
	if prev == next {
		return nil
	}

	var diff Diff
	changed := false

	if prev.Version != next.Version {
		diff.Version = &FieldChange[int]{From: prev.Version, To: next.Version}
		changed = true
	}
	if prev.Content != next.Content {
		diff.Content = &FieldChange[string]{From: prev.Content, To: next.Content}
		changed = true
	}
	if prev.Temperature != next.Temperature {
		diff.Temperature = &FieldChange[float64]{From: prev.Temperature, To: next.Temperature}
		changed = true
	}
	if !tagEqual(prev.Tag, next.Tag) {
		diff.Tag = &FieldChange[*string]{From: prev.Tag, To: next.Tag}
		changed = true
	}
	if !prev.UpdatedAt.Equal(next.UpdatedAt) {
		diff.UpdatedAt = &FieldChange[time.Time]{From: prev.UpdatedAt, To: next.UpdatedAt}
		changed = true
	}

	if !changed {
		return nil
	}
	return &diff
}

// tagEqual compares two nullable tags by value.
func tagEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
