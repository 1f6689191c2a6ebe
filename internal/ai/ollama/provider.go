// Package ollama implements models.AIProvider using a local Ollama server.
package ollama

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/testscout/internal/ai/transport"
	"github.com/kiranshivaraju/testscout/internal/config"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Provider implements models.AIProvider using Ollama /api/chat.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, client: &http.Client{}}
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Format   string           `json:"format,omitempty"`
	Options  chatOptions      `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Model   string         `json:"model"`
	Message models.Message `json:"message"`
	// token counts
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.cfg.Model }

// Complete sends messages to /api/chat with JSON output requested.
func (p *Provider) Complete(ctx context.Context, messages []models.Message) (*models.Completion, error) {
	req := chatRequest{
		Model:    p.cfg.Model,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options:  chatOptions{Temperature: 0.1},
	}

	var resp chatResponse
	if err := transport.PostJSON(ctx, p.client, p.Name(), p.cfg.BaseURL+"/api/chat", nil, req, &resp); err != nil {
		return nil, err
	}

	return &models.Completion{
		Content:      resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		Model:        resp.Model,
	}, nil
}

var _ models.AIProvider = (*Provider)(nil)
