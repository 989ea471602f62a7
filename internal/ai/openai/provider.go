// Package openai implements models.AIProvider against OpenAI's chat
// completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/devforge-dev/devforge/internal/ai/prompt"
	"github.com/devforge-dev/devforge/internal/config"
	"github.com/devforge-dev/devforge/pkg/models"
)

const baseURL = "https://api.openai.com/v1"

var ErrEmptyCompletion = errors.New("openai returned no choices")

type Provider struct {
	cfg    config.OpenAIConfig
	url    string
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return &Provider{
		cfg:    cfg,
		url:    baseURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) DescribeRepository(ctx context.Context, facts models.RepositoryFacts) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.DescribeSystem},
			{Role: "user", Content: prompt.DescribeRepository(facts)},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.url+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding openai response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var _ models.AIProvider = (*Provider)(nil)
