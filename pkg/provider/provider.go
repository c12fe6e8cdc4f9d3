package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/pkg/config"
	providerfantasy "concierge/pkg/provider/fantasy"
	provideropenai "concierge/pkg/provider/openai"
	"concierge/pkg/provider/opencode"
	providertypes "concierge/pkg/provider/types"
)

// Client is the normalized surface every model backend exposes. The system
// prompt is passed on every call; backends that keep server-side session
// state apply it once, at session start.
type Client interface {
	Health(ctx context.Context) error
	CreateSession(ctx context.Context, title string) (string, error)
	Prompt(ctx context.Context, sessionID string, prompt string, model string, system string) (providertypes.PromptResult, error)
}

// New resolves the configured provider backend.
func New(cfg *config.Config) (Client, error) {
	providerID := strings.TrimSpace(cfg.Agents.Defaults.Provider)
	if providerID == "" {
		providerID = "opencode"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving provider client", "provider", providerID)

	switch providerID {
	case "opencode":
		return opencode.New(cfg)
	case "openai":
		return provideropenai.New(cfg)
	case "fantasy":
		return providerfantasy.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
