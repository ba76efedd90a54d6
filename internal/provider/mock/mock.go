package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/saturnino-fabrica-de-software/facetag/internal/provider"
)

// Provider implementa provider.EmbeddingSource para testes e desenvolvimento.
// Every non-empty image yields exactly one face whose embedding is derived
// from the image hash, so the same bytes always produce the same vector.
type Provider struct {
	dimension int
}

func New(dimension int) *Provider {
	return &Provider{dimension: dimension}
}

func (p *Provider) Detect(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return []provider.DetectedFace{}, nil
	}

	return []provider.DetectedFace{
		{
			BoundingBox: provider.BoundingBox{
				X:      0.1,
				Y:      0.1,
				Width:  0.8,
				Height: 0.8,
			},
			Confidence: 0.99,
			Embedding:  Embedding(image, p.dimension),
		},
	}, nil
}

func (p *Provider) Dimension() int {
	return p.dimension
}

func (p *Provider) Close() error {
	return nil
}

// Embedding expands sha256(image || counter) into a unit-norm vector.
func Embedding(image []byte, dimension int) []float64 {
	embedding := make([]float64, dimension)

	var block [sha256.Size]byte
	counter := make([]byte, 4)
	for i := 0; i < dimension; i++ {
		idx := i % sha256.Size
		if idx == 0 {
			binary.BigEndian.PutUint32(counter, uint32(i/sha256.Size))
			h := sha256.New()
			h.Write(image)
			h.Write(counter)
			copy(block[:], h.Sum(nil))
		}
		embedding[i] = (float64(block[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	if norm == 0 {
		return embedding
	}
	norm = math.Sqrt(norm)

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var _ provider.EmbeddingSource = (*Provider)(nil)
