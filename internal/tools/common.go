package tools

import (
	"fmt"

	"merchantama/internal/agent"
)

const maxOutputBytes = 10_000

func truncate(b []byte) string {
	if len(b) > maxOutputBytes {
		return string(b[:maxOutputBytes]) + "\n... (truncated)"
	}
	return string(b)
}

// MerchantRegistry builds the tool set every merchant agent gets. Web search
// is only registered when a Brave API key is configured.
func MerchantRegistry(braveAPIKey string) (*agent.Registry, error) {
	registry := agent.NewRegistry()

	userInfo, err := NewUserInfo()
	if err != nil {
		return nil, fmt.Errorf("user_info tool: %w", err)
	}
	registry.Register(userInfo)

	if braveAPIKey != "" {
		web, err := NewWeb(braveAPIKey)
		if err != nil {
			return nil, fmt.Errorf("web_search tool: %w", err)
		}
		registry.Register(web)
	}

	return registry, nil
}
