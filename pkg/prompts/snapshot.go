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
// Package prompts defines the prompt snapshot model shared by the
// synchronization sessions and the transport layer.
//
// A Snapshot is one observed state of a remote prompt record. Snapshots are
// immutable: every refresh produces a new Snapshot rather than mutating the
// one currently held.
package prompts

import (
	"encoding/json"
	"fmt"
	"time"
)

// ModelInfo describes the model a prompt is configured for.
// It is treated as stable for the lifetime of a sync session and is never
// part of change detection.
type ModelInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
}

// Snapshot is one immutable observed state of a synchronized prompt record.
type Snapshot struct {
	ID          string    `json:"id"`
	Version     int       `json:"version"`
	Content     string    `json:"content"`
	Tag         *string   `json:"tag,omitempty"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Model       ModelInfo `json:"model"`
}

// Clone returns a defensive copy of the snapshot. Pointer-typed fields are
// duplicated so the caller cannot reach back into the session's held value.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	if s.Tag != nil {
		tag := *s.Tag
		out.Tag = &tag
	}
	return out
}

// ParseSnapshot decodes a pushed message payload into a Snapshot.
//
// Push transports deliver snapshots as JSON text frames; a payload that does
// not decode, or that is missing its id, is rejected so the session can
// surface it as a transport error without adopting garbage state.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	if snap.ID == "" {
		return nil, fmt.Errorf("snapshot payload missing id")
	}
	return &snap, nil
}
