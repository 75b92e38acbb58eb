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

package server

import (
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/a2ui/pkg/a2aext"
	"github.com/kadirpekel/a2ui/pkg/config"
	"github.com/kadirpekel/a2ui/pkg/protocol"
)

// BuildAgentCard describes the server as an A2A agent that speaks the
// configured A2UI versions.
func BuildAgentCard(cfg *config.Config) (*a2a.AgentCard, error) {
	agent := cfg.Agent

	extensions := make([]a2a.AgentExtension, 0, len(agent.ProtocolVersions))
	for _, v := range agent.ProtocolVersions {
		ext, err := a2aext.AgentExtension(protocol.Version(v), agent.RequireExtension)
		if err != nil {
			return nil, err
		}
		extensions = append(extensions, ext)
	}

	card := &a2a.AgentCard{
		Name:               agent.Name,
		Description:        agent.Description,
		URL:                strings.TrimSuffix(cfg.Server.BaseURL, "/") + "/a2a",
		Version:            agent.Version,
		ProtocolVersion:    "0.3.0",
		DefaultInputModes:  []string{a2aext.MimeType, "text/plain"},
		DefaultOutputModes: []string{a2aext.MimeType, "text/plain"},
		Skills: []a2a.AgentSkill{{
			ID:          "a2ui",
			Name:        "A2UI surfaces",
			Description: "Streams declarative UI surfaces and accepts user actions",
			Tags:        []string{"ui", "a2ui"},
		}},
		Capabilities: a2a.AgentCapabilities{
			Streaming:  true,
			Extensions: extensions,
		},
		PreferredTransport: a2a.TransportProtocolHTTPJSON,
	}

	if agent.ProviderOrg != "" {
		card.Provider = &a2a.AgentProvider{
			Org: agent.ProviderOrg,
			URL: agent.ProviderURL,
		}
	}
	return card, nil
}
