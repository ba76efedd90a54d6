package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventPhotoProcessed = "photo.processed"
	EventPhotoMatched   = "photo.matched"
	EventProfileUpdated = "profile.updated"
)

type PhotoProcessedEvent struct {
	PhotoID        uuid.UUID   `json:"photo_id"`
	UploaderID     uuid.UUID   `json:"uploader_id"`
	Status         PhotoStatus `json:"status"`
	NumFaces       int         `json:"num_faces"`
	TotalMatches   int         `json:"total_matches"`
	MatchedUserIDs []uuid.UUID `json:"matched_user_ids"`
	ErrorReason    string      `json:"error_reason,omitempty"`
	Rematch        bool        `json:"rematch"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

type ProfileUpdatedEvent struct {
	UserID           uuid.UUID `json:"user_id"`
	EmbeddingVersion int64     `json:"embedding_version"`
	OccurredAt       time.Time `json:"occurred_at"`
}
