package domain

import (
	"time"

	"github.com/google/uuid"
)

// User holds the account and, once a profile photo was accepted, the
// reference embedding used for matching.
type User struct {
	ID                 uuid.UUID  `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email,omitempty"`
	PasswordHash       string     `json:"-"`
	ProfilePhotoRef    string     `json:"-"`
	Embedding          []float64  `json:"-"`
	EmbeddingVersion   int64      `json:"embedding_version"`
	EmbeddingUpdatedAt *time.Time `json:"embedding_updated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"-"`
}

func (u *User) HasProfile() bool {
	return len(u.Embedding) > 0
}

// ProfileEmbedding is the reference embedding of one user at a given version.
type ProfileEmbedding struct {
	UserID    uuid.UUID
	Embedding []float64
	Version   int64
}

type ProfileUploadResult struct {
	FaceDetected       bool    `json:"face_detected"`
	DetectorConfidence float64 `json:"detector_confidence"`
	EmbeddingVersion   int64   `json:"embedding_version"`
}
