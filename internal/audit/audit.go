// Package audit keeps a trail of every biometric operation: who had a
// face template registered, and which users were identified in which photo.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventProfileRegistered EventType = "PROFILE_REGISTERED"
	EventPhotoProcessed    EventType = "PHOTO_PROCESSED"
	EventPhotoRematched    EventType = "PHOTO_REMATCHED"
	// EventUserIdentified is written once per user matched in a photo.
	EventUserIdentified EventType = "USER_IDENTIFIED"
)

// Event represents an audit event for LGPD compliance
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType EventType         `json:"event_type"`
	UserID    uuid.UUID         `json:"user_id"`
	PhotoID   uuid.UUID         `json:"photo_id"`
	Provider  string            `json:"provider"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("provider", event.Provider),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// Trail turns pipeline events into audit events. It sits next to the
// websocket hub and the JetStream publisher as an event sink.
type Trail struct {
	logger   Logger
	provider string
}

func NewTrail(logger Logger, provider string) *Trail {
	return &Trail{logger: logger, provider: provider}
}

func (t *Trail) PublishProfileUpdated(ctx context.Context, e domain.ProfileUpdatedEvent) error {
	return t.logger.Log(ctx, Event{
		Timestamp: e.OccurredAt,
		EventType: EventProfileRegistered,
		UserID:    e.UserID,
		Provider:  t.provider,
		Success:   true,
		Metadata: map[string]string{
			"embedding_version": strconv.FormatInt(e.EmbeddingVersion, 10),
		},
	})
}

func (t *Trail) PublishPhotoProcessed(ctx context.Context, e domain.PhotoProcessedEvent) error {
	eventType := EventPhotoProcessed
	if e.Rematch {
		eventType = EventPhotoRematched
	}

	err := t.logger.Log(ctx, Event{
		Timestamp: e.OccurredAt,
		EventType: eventType,
		UserID:    e.UploaderID,
		PhotoID:   e.PhotoID,
		Provider:  t.provider,
		Success:   e.Status == domain.StatusCompleted,
		Error:     e.ErrorReason,
		Metadata: map[string]string{
			"status":        string(e.Status),
			"faces_count":   strconv.Itoa(e.NumFaces),
			"total_matches": strconv.Itoa(e.TotalMatches),
		},
	})
	if err != nil {
		return err
	}

	for _, userID := range e.MatchedUserIDs {
		if err := t.logger.Log(ctx, Event{
			Timestamp: e.OccurredAt,
			EventType: EventUserIdentified,
			UserID:    userID,
			PhotoID:   e.PhotoID,
			Provider:  t.provider,
			Success:   true,
		}); err != nil {
			return err
		}
	}
	return nil
}
