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

package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrJSONDecode is returned for bytes that are not a JSON object.
	ErrJSONDecode = errors.New("malformed JSON")

	// ErrUnknownMessageType is returned when no envelope key is recognized.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrParse is returned for a recognized envelope whose body is invalid.
	ErrParse = errors.New("invalid envelope body")

	// ErrMultipleEnvelopeKeys is returned when more than one envelope key is present.
	ErrMultipleEnvelopeKeys = errors.New("multiple envelope keys")

	// ErrInvalidEnvelopeType is returned for client events that are neither
	// userAction nor error.
	ErrInvalidEnvelopeType = errors.New("invalid envelope type")

	// ErrNotEncodable is returned when a canonical envelope has no
	// representation in the requested wire version.
	ErrNotEncodable = errors.New("envelope not representable in wire version")
)

// Error describes a failed parse. Kind is one of the package sentinels and
// Key is the envelope key being decoded, when known.
type Error struct {
	Kind error
	Key  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %s", e.Key, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, key string, err error) *Error {
	return &Error{Kind: kind, Key: key, Err: err}
}

func parseErrorf(key, format string, args ...any) *Error {
	return newError(ErrParse, key, fmt.Errorf(format, args...))
}
