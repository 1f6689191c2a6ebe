// Package vllm connects to a vLLM server through its OpenAI-compatible API.
package vllm

import (
	"strings"

	"github.com/kiranshivaraju/testscout/internal/ai/openai"
	"github.com/kiranshivaraju/testscout/internal/config"
)

// NewProvider returns a provider for the vLLM server at cfg.BaseURL.
func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return openai.NewCompatible("vllm", base, "", cfg.Model)
}
