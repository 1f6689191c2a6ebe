package embed

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/kiranshivaraju/testscout/internal/textproc"
)

// HashEmbedder is a deterministic local model: stemmed content words are
// feature-hashed into a fixed number of signed buckets and the result is
// L2-normalised. It needs no network and never fails.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of length dims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Name() string    { return "hash" }
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed returns the normalised feature vector of text. Text without content
// words maps to the zero vector.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, term := range textproc.Terms(text) {
		sum := xxhash.Sum64String(term)
		idx := int(sum % uint64(h.dims))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	normalize(vec)
	return vec, nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

var _ Embedder = (*HashEmbedder)(nil)
