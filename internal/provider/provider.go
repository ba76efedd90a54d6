package provider

import "context"

// EmbeddingSource detecta faces numa imagem e devolve um embedding por face.
//
// Implementations own their network clients or model handles: they are
// created by an explicit constructor and released with Close.
type EmbeddingSource interface {
	// Detect returns every face found in image, in detection order.
	// Zero faces is a valid result, not an error.
	Detect(ctx context.Context, image []byte) ([]DetectedFace, error)

	// Dimension is the fixed embedding length this source produces.
	Dimension() int

	Close() error
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
	Embedding   []float64   `json:"embedding"`
}

// BoundingBox represents the face area in the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
