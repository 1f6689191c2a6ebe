package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/testscout/internal/embed"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// DefaultConcurrency is the number of records embedded in parallel.
const DefaultConcurrency = 8

// Embedder is the part of embed.Service the cache needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// embedKey identifies an embedding by record id and the hash of the exact
// text embedded, so a record whose text changed is re-embedded.
type embedKey struct {
	id   string
	hash uint64
}

func keyOf(r *models.TestCase) embedKey {
	return embedKey{id: r.ID, hash: xxhash.Sum64String(r.EmbeddingText())}
}

// Cache holds the current corpus snapshot. Readers get an immutable
// snapshot; Reload builds a new one and swaps it in atomically.
type Cache struct {
	embedder    Embedder
	concurrency int

	current atomic.Pointer[Snapshot]
	reload  sync.Mutex
}

// NewCache creates an empty cache.
func NewCache(e Embedder, concurrency int) *Cache {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Cache{embedder: e, concurrency: concurrency}
}

// Current returns the published snapshot, or nil before the first Reload.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Reload loads src, embeds its records and publishes the result. Vectors of
// unchanged records are taken from the previous snapshot. On error the
// previous snapshot stays in place.
func (c *Cache) Reload(ctx context.Context, src Source) (*Snapshot, error) {
	c.reload.Lock()
	defer c.reload.Unlock()

	snap, err := c.build(ctx, src, c.current.Load())
	if err != nil {
		return nil, err
	}
	c.current.Store(snap)
	return snap, nil
}

// For returns the published snapshot when it was loaded from src. Otherwise
// it builds a snapshot for src without publishing it.
func (c *Cache) For(ctx context.Context, src Source) (*Snapshot, error) {
	cur := c.current.Load()
	if cur != nil && cur.key == src.Key() {
		return cur, nil
	}
	return c.build(ctx, src, cur)
}

func (c *Cache) build(ctx context.Context, src Source, prev *Snapshot) (*Snapshot, error) {
	start := time.Now()

	records, diag, err := src.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrCorpusUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}

	keys := make([]embedKey, len(records))
	vectors := make([][]float32, len(records))
	reused := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, rec := range records {
		keys[i] = keyOf(rec)
		if v, ok := prev.lookup(keys[i]); ok {
			vectors[i] = v
			reused++
			continue
		}

		g.Go(func() error {
			v, err := c.embedder.Embed(gctx, rec.EmbeddingText())
			switch {
			case err == nil:
				vectors[i] = v
				return nil
			case errors.Is(err, embed.ErrModelUnavailable):
				return err
			case gctx.Err() != nil:
				return gctx.Err()
			}
			slog.Warn("failed to embed record", "id", rec.ID, "error", err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed corpus %s: %w", src.Key(), err)
	}

	snap := newSnapshot(src.Key(), records, vectors, keys, diag)
	slog.Info("corpus loaded",
		"source", snap.key,
		"records", len(records),
		"malformed", diag.Malformed,
		"unembedded", snap.unembedded,
		"reused_embeddings", reused,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}
