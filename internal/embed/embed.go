// Package embed turns free text into fixed-length vectors.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultDimensions is the vector length used when none is configured.
const DefaultDimensions = 384

// DefaultLoadTimeout bounds a single model load.
const DefaultLoadTimeout = 2 * time.Minute

// ErrModelUnavailable means the embedding model could not be obtained.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder produces embeddings with a fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// Loader obtains a ready-to-use Embedder. It may be slow.
type Loader func(ctx context.Context) (Embedder, error)

// Service is the embedding entry point shared by the corpus cache and the
// pipeline. The model is loaded on first use, exactly once even when the
// first calls race; a failed load is retried by the next call. A caller
// whose context ends stops waiting without aborting the load for others.
type Service struct {
	load        Loader
	dims        int
	loadTimeout time.Duration
	model       atomic.Pointer[Embedder]
	group       singleflight.Group
}

// NewService creates a Service that produces vectors of length dims.
func NewService(load Loader, dims int) *Service {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Service{load: load, dims: dims, loadTimeout: DefaultLoadTimeout}
}

// NewStaticService wraps an already-loaded Embedder.
func NewStaticService(e Embedder) *Service {
	s := NewService(func(context.Context) (Embedder, error) { return e, nil }, e.Dimensions())
	s.model.Store(&e)
	return s
}

// Dimensions returns D.
func (s *Service) Dimensions() int { return s.dims }

// Name returns the loaded model's name, or "" before the first load.
func (s *Service) Name() string {
	if m := s.model.Load(); m != nil {
		return (*m).Name()
	}
	return ""
}

// Ready loads the model if it is not loaded yet.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.embedder(ctx)
	return err
}

// Embed returns the embedding of text. Empty or whitespace-only text yields
// the zero vector without touching the model.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, s.dims), nil
	}

	m, err := s.embedder(ctx)
	if err != nil {
		return nil, err
	}

	vec, err := m.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != s.dims {
		return nil, fmt.Errorf("%s returned %d dimensions, want %d", m.Name(), len(vec), s.dims)
	}
	return vec, nil
}

func (s *Service) embedder(ctx context.Context) (Embedder, error) {
	if m := s.model.Load(); m != nil {
		return *m, nil
	}

	// The load is shared by every waiting caller, so it must not inherit
	// the first caller's cancellation.
	ch := s.group.DoChan("load", func() (any, error) {
		if m := s.model.Load(); m != nil {
			return *m, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		start := time.Now()
		m, err := s.load(loadCtx)
		if err != nil {
			if errors.Is(err, ErrModelUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		s.model.Store(&m)
		slog.Info("embedding model loaded",
			"model", m.Name(),
			"dimensions", m.Dimensions(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Embedder), nil
	}
}
