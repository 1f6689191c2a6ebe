package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ollamaEmbedReq is the Ollama /api/embed request body.
type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResp is the Ollama /api/embed response body.
type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbedder calls a remote Ollama embedding model.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

// NewOllamaEmbedder creates an embedder for the model served at baseURL.
func NewOllamaEmbedder(baseURL, model string, dims int, timeout time.Duration) *OllamaEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &OllamaEmbedder{
		url:    strings.TrimRight(baseURL, "/") + "/api/embed",
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: timeout},
	}
}

func (o *OllamaEmbedder) Name() string    { return "ollama/" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

// Embed calls the Ollama /api/embed endpoint and returns the normalised vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{Model: o.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var out ollamaEmbedResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}

	vec := out.Embeddings[0]
	normalize(vec)
	return vec, nil
}

// OllamaLoader returns a Loader that probes the model once before handing it
// out, so an unreachable server or a missing model surfaces as ErrModelUnavailable.
func OllamaLoader(baseURL, model string, dims int, timeout time.Duration) Loader {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return func(ctx context.Context) (Embedder, error) {
		e := NewOllamaEmbedder(baseURL, model, dims, timeout)
		vec, err := e.Embed(ctx, "warm up")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("%w: model %s has %d dimensions, configured %d",
				ErrModelUnavailable, model, len(vec), dims)
		}
		return e, nil
	}
}

// HashLoader returns a Loader for the local HashEmbedder.
func HashLoader(dims int) Loader {
	return func(context.Context) (Embedder, error) {
		return NewHashEmbedder(dims), nil
	}
}

var _ Embedder = (*OllamaEmbedder)(nil)
