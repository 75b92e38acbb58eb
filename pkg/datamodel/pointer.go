// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datamodel

import (
	"fmt"
	"strconv"
	"strings"
)

// Pointer is a decoded RFC 6901 JSON Pointer. The empty pointer addresses
// the whole document.
type Pointer []string

// ParsePointer decodes a JSON Pointer string.
func ParsePointer(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("%w: %q must start with '/'", ErrInvalidPointer, s)
	}

	raw := strings.Split(s[1:], "/")
	tokens := make(Pointer, len(raw))
	for i, tok := range raw {
		if strings.Contains(tok, "~") {
			if err := checkEscapes(tok); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPointer, s, err)
			}
			// Order matters: ~1 first so "~01" decodes to "~1", not "/".
			tok = strings.ReplaceAll(tok, "~1", "/")
			tok = strings.ReplaceAll(tok, "~0", "~")
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func checkEscapes(tok string) error {
	for i := 0; i < len(tok); i++ {
		if tok[i] != '~' {
			continue
		}
		if i+1 >= len(tok) || (tok[i+1] != '0' && tok[i+1] != '1') {
			return fmt.Errorf("invalid escape at offset %d", i)
		}
	}
	return nil
}

// String encodes the pointer back to its RFC 6901 form.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, tok := range p {
		b.WriteByte('/')
		tok = strings.ReplaceAll(tok, "~", "~0")
		tok = strings.ReplaceAll(tok, "/", "~1")
		b.WriteString(tok)
	}
	return b.String()
}

// IsRoot reports whether the pointer addresses the whole document.
func (p Pointer) IsRoot() bool {
	return len(p) == 0
}

// Append returns a new pointer with the given tokens appended.
func (p Pointer) Append(tokens ...string) Pointer {
	out := make(Pointer, 0, len(p)+len(tokens))
	out = append(out, p...)
	return append(out, tokens...)
}

// Parent returns the pointer without its last token.
func (p Pointer) Parent() Pointer {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Last returns the final token, or "" for the root pointer.
func (p Pointer) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// arrayIndex interprets tok as an index into an array of length n.
// "-" and n both address the slot one past the end.
func arrayIndex(tok string, n int) (int, bool) {
	if tok == "-" {
		return n, true
	}
	if tok == "" || (len(tok) > 1 && tok[0] == '0') {
		return 0, false
	}
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
