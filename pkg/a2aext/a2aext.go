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

// Package a2aext packages A2UI envelopes as A2A DataParts and handles the
// client capability exchange defined by the A2UI A2A extension.
//
// The engine does not negotiate on its own. Callers pick the extension URI
// for the protocol version they speak, and Negotiate validates that a peer
// requested exactly one.
package a2aext

import (
	"errors"
	"fmt"
	"maps"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/a2ui/pkg/protocol"
)

const (
	// MimeType marks a DataPart as carrying one A2UI envelope.
	MimeType = "application/json+a2ui"

	// MimeTypeKey is the DataPart metadata key holding the MIME type.
	MimeTypeKey = "mimeType"

	// CapabilitiesKey is the message metadata key for client capabilities.
	CapabilitiesKey = "a2uiClientCapabilities"

	ExtensionURIV08 = "https://a2ui.org/a2a-extension/a2ui/v0.8"
	ExtensionURIV09 = "https://a2ui.org/a2a-extension/a2ui/v0.9"
)

var (
	ErrInvalidMimeType           = errors.New("invalid A2UI mime type")
	ErrInvalidDataPart           = errors.New("invalid A2UI data part")
	ErrMissingClientCapabilities = errors.New("missing A2UI client capabilities")
	ErrNoExtension               = errors.New("no A2UI extension requested")
	ErrAmbiguousExtension        = errors.New("more than one A2UI extension requested")
	ErrUnknownExtension          = errors.New("unknown A2UI extension")
)

// WrapEnvelope wraps a wire envelope into a DataPart tagged with MimeType.
func WrapEnvelope(envelope map[string]any) a2a.DataPart {
	return a2a.DataPart{
		Data:     envelope,
		Metadata: map[string]any{MimeTypeKey: MimeType},
	}
}

// UnwrapEnvelope returns the envelope carried by part. A part without any
// metadata is accepted as is; a part with metadata must declare MimeType.
func UnwrapEnvelope(part a2a.Part) (map[string]any, error) {
	dp, ok := dataPartOf(part)
	if !ok {
		return nil, fmt.Errorf("%w: expected data part, got %T", ErrInvalidDataPart, part)
	}
	if len(dp.Metadata) > 0 {
		if mt, _ := dp.Metadata[MimeTypeKey].(string); mt != MimeType {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMimeType, dp.Metadata[MimeTypeKey])
		}
	}
	if dp.Data == nil {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidDataPart)
	}
	return dp.Data, nil
}

// IsEnvelopePart reports whether part is a DataPart tagged with MimeType.
func IsEnvelopePart(part a2a.Part) bool {
	dp, ok := dataPartOf(part)
	if !ok || dp.Metadata == nil {
		return false
	}
	mt, _ := dp.Metadata[MimeTypeKey].(string)
	return mt == MimeType
}

func dataPartOf(part a2a.Part) (a2a.DataPart, bool) {
	switch p := part.(type) {
	case a2a.DataPart:
		return p, true
	case *a2a.DataPart:
		if p == nil {
			return a2a.DataPart{}, false
		}
		return *p, true
	default:
		return a2a.DataPart{}, false
	}
}

// BuildClientMessage builds a user message carrying envelope as its only
// part, with caps attached under CapabilitiesKey.
func BuildClientMessage(envelope map[string]any, caps protocol.ClientCapabilities) *a2a.Message {
	msg := a2a.NewMessage(a2a.MessageRoleUser, WrapEnvelope(envelope))
	msg.Metadata = map[string]any{
		CapabilitiesKey: capabilitiesMap(caps),
	}
	return msg
}

// BuildServerMessage builds an agent message carrying envelope as its only
// part.
func BuildServerMessage(envelope map[string]any) *a2a.Message {
	return a2a.NewMessage(a2a.MessageRoleAgent, WrapEnvelope(envelope))
}

func capabilitiesMap(caps protocol.ClientCapabilities) map[string]any {
	supported := caps.SupportedCatalogIDs
	if supported == nil {
		supported = []string{}
	}
	inline := caps.InlineCatalogs
	if inline == nil {
		inline = []string{}
	}
	return map[string]any{
		"supportedCatalogIds": supported,
		"inlineCatalogs":      inline,
	}
}

// ExtractEnvelopes returns the data of every A2UI part of msg in part order.
// Parts of other types or MIME types are skipped.
func ExtractEnvelopes(msg *a2a.Message) []map[string]any {
	if msg == nil {
		return nil
	}
	var out []map[string]any
	for _, part := range msg.Parts {
		if !IsEnvelopePart(part) {
			continue
		}
		dp, _ := dataPartOf(part)
		if dp.Data == nil {
			continue
		}
		out = append(out, maps.Clone(dp.Data))
	}
	return out
}

// ClientCapabilitiesOf decodes the capabilities a client attached to msg.
func ClientCapabilitiesOf(msg *a2a.Message) (protocol.ClientCapabilities, error) {
	var caps protocol.ClientCapabilities
	if msg == nil || msg.Metadata == nil {
		return caps, ErrMissingClientCapabilities
	}
	raw, ok := msg.Metadata[CapabilitiesKey]
	if !ok || raw == nil {
		return caps, ErrMissingClientCapabilities
	}
	if _, ok := raw.(map[string]any); !ok {
		return caps, fmt.Errorf("%w: expected object, got %T", ErrMissingClientCapabilities, raw)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &caps,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return caps, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return caps, fmt.Errorf("%w: %v", ErrMissingClientCapabilities, err)
	}
	return caps, nil
}
