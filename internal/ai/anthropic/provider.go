// Package anthropic implements models.AIProvider using the Anthropic Messages API.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/testscout/internal/ai/transport"
	"github.com/kiranshivaraju/testscout/internal/config"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

const apiVersion = "2023-06-01"

// Provider implements models.AIProvider using Anthropic /v1/messages.
type Provider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, client: &http.Client{}}
}

type messagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Messages    []models.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.cfg.Model }

// Complete sends messages to /v1/messages. System messages are moved to the
// top-level system field.
func (p *Provider) Complete(ctx context.Context, messages []models.Message) (*models.Completion, error) {
	req := messagesRequest{
		Model:       p.cfg.Model,
		MaxTokens:   4096,
		Temperature: 0.1,
		Messages:    make([]models.Message, 0, len(messages)),
	}
	var system []string
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, m)
	}
	req.System = strings.Join(system, "\n\n")

	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": apiVersion,
	}

	var resp messagesResponse
	if err := transport.PostJSON(ctx, p.client, p.Name(), p.cfg.BaseURL+"/v1/messages", headers, req, &resp); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}

	return &models.Completion{
		Content:      sb.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Model:        resp.Model,
	}, nil
}

var _ models.AIProvider = (*Provider)(nil)
