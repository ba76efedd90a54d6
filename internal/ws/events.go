package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

type EventType string

const (
	EventPhotoProcessed EventType = domain.EventPhotoProcessed
	EventPhotoMatched   EventType = domain.EventPhotoMatched
	EventProfileUpdated EventType = domain.EventProfileUpdated
)

type Event struct {
	UserID    uuid.UUID   `json:"-"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// PhotoNotice is the payload of photo events.
type PhotoNotice struct {
	PhotoID      uuid.UUID          `json:"photo_id"`
	UploaderID   uuid.UUID          `json:"uploader_id"`
	Status       domain.PhotoStatus `json:"status"`
	NumFaces     int                `json:"num_faces"`
	TotalMatches int                `json:"total_matches"`
	ErrorReason  string             `json:"error_reason,omitempty"`
	Rematch      bool               `json:"rematch"`
}

func noticeFrom(e domain.PhotoProcessedEvent) PhotoNotice {
	return PhotoNotice{
		PhotoID:      e.PhotoID,
		UploaderID:   e.UploaderID,
		Status:       e.Status,
		NumFaces:     e.NumFaces,
		TotalMatches: e.TotalMatches,
		ErrorReason:  e.ErrorReason,
		Rematch:      e.Rematch,
	}
}
