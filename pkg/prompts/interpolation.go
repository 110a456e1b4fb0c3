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

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var placeholderRe = regexp.MustCompile(`\{\{\.(\w+)\}\}`)

// Render substitutes variables into the snapshot's content.
//
// Uses {{.variable_name}} syntax. Placeholders without a matching variable
// are left in place so missing inputs are visible in the output. Values are
// sanitized before substitution; the template text itself is not modified.
//
// Example:
//
//	snap.Content = "You are a {{.role}} assistant for {{.team}}"
//	text := snap.Render(map[string]interface{}{"role": "SQL", "team": "data-eng"})
func (s *Snapshot) Render(vars map[string]interface{}) string {
	return Interpolate(s.Content, vars)
}

// Interpolate performs safe variable substitution in a prompt template.
func Interpolate(template string, vars map[string]interface{}) string {
	if vars == nil {
		return template
	}

	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "{{."), "}}")
		value, ok := vars[name]
		if !ok {
			return match
		}
		return sanitizeValue(value)
	})
}

// sanitizeValue converts a variable to a single-line string with control
// characters stripped, so a substituted value cannot fabricate prompt
// structure around itself.
func sanitizeValue(value interface{}) string {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []string:
		s = strings.Join(v, ", ")
	default:
		s = fmt.Sprintf("%v", v)
	}

	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(' ')
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}
