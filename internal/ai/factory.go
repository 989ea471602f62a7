package ai

import (
	"fmt"

	"github.com/devforge-dev/devforge/internal/ai/groq"
	"github.com/devforge-dev/devforge/internal/ai/openai"
	"github.com/devforge-dev/devforge/internal/ai/static"
	"github.com/devforge-dev/devforge/internal/config"
	"github.com/devforge-dev/devforge/pkg/models"
)

// NewProvider constructs the configured AI provider. Called once at startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "groq":
		return groq.NewProvider(cfg.Groq, cfg.Timeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.Timeout), nil
	case "static":
		return static.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of groq, openai, static", cfg.Provider)
	}
}
