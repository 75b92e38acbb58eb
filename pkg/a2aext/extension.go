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

package a2aext

import (
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/a2ui/pkg/protocol"
)

// ExtensionsHeader carries the extension URIs a client activates on an
// HTTP request.
const ExtensionsHeader = "X-A2A-Extensions"

// ParseExtensionsHeader splits comma separated header values into URIs.
func ParseExtensionsHeader(values []string) []string {
	var uris []string
	for _, v := range values {
		for _, uri := range strings.Split(v, ",") {
			if uri = strings.TrimSpace(uri); uri != "" {
				uris = append(uris, uri)
			}
		}
	}
	return uris
}

// ExtensionURI returns the extension URI for version.
func ExtensionURI(version protocol.Version) (string, error) {
	switch version {
	case protocol.V08:
		return ExtensionURIV08, nil
	case protocol.V09:
		return ExtensionURIV09, nil
	default:
		return "", fmt.Errorf("%w: version %q", ErrUnknownExtension, version)
	}
}

// VersionForURI maps an extension URI back to its protocol version.
func VersionForURI(uri string) (protocol.Version, bool) {
	switch uri {
	case ExtensionURIV08:
		return protocol.V08, true
	case ExtensionURIV09:
		return protocol.V09, true
	default:
		return "", false
	}
}

// Negotiate checks that uris names exactly one A2UI extension and returns
// its version. URIs of other extensions are ignored.
func Negotiate(uris []string) (protocol.Version, error) {
	var found []protocol.Version
	seen := make(map[protocol.Version]bool)
	for _, uri := range uris {
		v, ok := VersionForURI(uri)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		found = append(found, v)
	}
	switch len(found) {
	case 0:
		return "", ErrNoExtension
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %v", ErrAmbiguousExtension, found)
	}
}

// AgentExtension describes the A2UI extension for an agent card.
func AgentExtension(version protocol.Version, required bool) (a2a.AgentExtension, error) {
	uri, err := ExtensionURI(version)
	if err != nil {
		return a2a.AgentExtension{}, err
	}
	return a2a.AgentExtension{
		URI:         uri,
		Description: fmt.Sprintf("A2UI %s declarative UI messages", version),
		Required:    required,
		Params: map[string]any{
			"supportedCatalogIds": []string{protocol.StandardCatalogID},
		},
	}, nil
}
