package deepface

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facetag/internal/provider"
)

// Provider implements provider.EmbeddingSource using DeepFace API
type Provider struct {
	client    *Client
	dimension int
}

// NewProvider creates a DeepFace embedding source that expects vectors of
// the given dimension from the configured model.
func NewProvider(config Config, dimension int) *Provider {
	return &Provider{
		client:    NewClient(config),
		dimension: dimension,
	}
}

// Detect returns every face DeepFace found. With enforce_detection off the
// server answers a photo without faces with one whole-image region whose
// face_confidence is 0; such regions are dropped.
func (p *Provider) Detect(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	resp, err := p.client.Represent(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("represent: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for i, result := range resp.Results {
		if result.FaceConfidence <= 0 {
			continue
		}
		if len(result.Embedding) == 0 {
			return nil, fmt.Errorf("%w: result %d has no embedding", ErrInvalidResponse, i)
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(result.FacialArea.X),
				Y:      float64(result.FacialArea.Y),
				Width:  float64(result.FacialArea.W),
				Height: float64(result.FacialArea.H),
			},
			Confidence: clamp01(result.FaceConfidence),
			Embedding:  result.Embedding,
		})
	}

	return faces, nil
}

func (p *Provider) Dimension() int {
	return p.dimension
}

func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

var _ provider.EmbeddingSource = (*Provider)(nil)
