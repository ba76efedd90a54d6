package face

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/facetag/internal/config"
	"github.com/saturnino-fabrica-de-software/facetag/internal/provider"
	"github.com/saturnino-fabrica-de-software/facetag/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facetag/internal/provider/mock"
)

// ProviderType defines supported embedding sources
type ProviderType string

const (
	// ProviderTypeDeepFace talks to a DeepFace HTTP server
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeMock derives embeddings from the image hash (dev only)
	ProviderTypeMock ProviderType = "mock"
)

// NewEmbeddingSource creates the embedding source selected by
// EMBEDDING_PROVIDER. The caller owns the returned source and must Close it.
func NewEmbeddingSource(cfg *config.Config) (provider.EmbeddingSource, error) {
	switch ProviderType(cfg.EmbeddingProvider) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeMock:
		return mock.New(cfg.EmbeddingDimension), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s)",
			cfg.EmbeddingProvider, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

func createDeepFaceProvider(cfg *config.Config) provider.EmbeddingSource {
	deepfaceConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		deepfaceConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceDetector != "" {
		deepfaceConfig.Detector = cfg.DeepFaceDetector
	}
	// The orchestrator enforces the overall budget; the client timeout only
	// bounds a single attempt.
	if cfg.EmbeddingTimeout > 0 {
		deepfaceConfig.Timeout = cfg.EmbeddingTimeout
	}

	dimension := cfg.EmbeddingDimension
	if dimension <= 0 {
		dimension = 128
	}

	return deepface.NewProvider(deepfaceConfig, dimension)
}
