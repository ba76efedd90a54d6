package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

func newBufferLogger() (*SlogLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil))), &buf
}

type logLine struct {
	Msg       string `json:"msg"`
	Component string `json:"component"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Provider  string `json:"provider"`
	Success   bool   `json:"success"`
	EventData string `json:"event_data"`
}

func readLines(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()
	var lines []logLine
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line logLine
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestSlogLogger_Log(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "profile registered",
			event: Event{
				EventType: EventProfileRegistered,
				UserID:    uuid.New(),
				Provider:  "deepface",
				Success:   true,
				Metadata:  map[string]string{"embedding_version": "1"},
			},
		},
		{
			name: "failed photo pass",
			event: Event{
				EventType: EventPhotoProcessed,
				PhotoID:   uuid.New(),
				Provider:  "deepface",
				Error:     "embedding source unavailable",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger()
			require.NoError(t, logger.Log(context.Background(), tt.event))

			lines := readLines(t, buf)
			require.Len(t, lines, 1)
			line := lines[0]

			assert.Equal(t, "audit_event", line.Msg)
			assert.Equal(t, "audit", line.Component)
			assert.Equal(t, string(tt.event.EventType), line.EventType)
			assert.Equal(t, tt.event.Provider, line.Provider)
			assert.Equal(t, tt.event.Success, line.Success)

			var data Event
			require.NoError(t, json.Unmarshal([]byte(line.EventData), &data))
			assert.Equal(t, tt.event.UserID, data.UserID)
			assert.Equal(t, tt.event.PhotoID, data.PhotoID)
			assert.Equal(t, tt.event.Error, data.Error)
			assert.Equal(t, tt.event.Metadata, data.Metadata)
		})
	}
}

func TestSlogLogger_Log_GeneratesIDAndTimestamp(t *testing.T) {
	logger, buf := newBufferLogger()
	before := time.Now().UTC()

	require.NoError(t, logger.Log(context.Background(), Event{EventType: EventPhotoProcessed}))

	lines := readLines(t, buf)
	require.Len(t, lines, 1)
	_, err := uuid.Parse(lines[0].EventID)
	require.NoError(t, err)

	var data Event
	require.NoError(t, json.Unmarshal([]byte(lines[0].EventData), &data))
	assert.False(t, data.Timestamp.Before(before))
}

func TestSlogLogger_Log_KeepsProvidedID(t *testing.T) {
	logger, buf := newBufferLogger()
	id := uuid.New()
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, logger.Log(context.Background(), Event{ID: id, Timestamp: ts, EventType: EventPhotoRematched}))

	lines := readLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, id.String(), lines[0].EventID)

	var data Event
	require.NoError(t, json.Unmarshal([]byte(lines[0].EventData), &data))
	assert.True(t, ts.Equal(data.Timestamp))
}

type recordingLogger struct {
	events []Event
	err    error
}

func (r *recordingLogger) Log(_ context.Context, event Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func TestTrail_PublishProfileUpdated(t *testing.T) {
	rec := &recordingLogger{}
	trail := NewTrail(rec, "deepface")
	userID := uuid.New()
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, trail.PublishProfileUpdated(context.Background(), domain.ProfileUpdatedEvent{
		UserID: userID, EmbeddingVersion: 3, OccurredAt: at,
	}))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, EventProfileRegistered, ev.EventType)
	assert.Equal(t, userID, ev.UserID)
	assert.Equal(t, at, ev.Timestamp)
	assert.Equal(t, "deepface", ev.Provider)
	assert.True(t, ev.Success)
	assert.Equal(t, "3", ev.Metadata["embedding_version"])
}

func TestTrail_PublishPhotoProcessed(t *testing.T) {
	uploader, alice, bob := uuid.New(), uuid.New(), uuid.New()
	photoID := uuid.New()

	tests := []struct {
		name      string
		event     domain.PhotoProcessedEvent
		wantTypes []EventType
		wantOK    bool
	}{
		{
			name: "completed with two matched users",
			event: domain.PhotoProcessedEvent{
				PhotoID: photoID, UploaderID: uploader, Status: domain.StatusCompleted,
				NumFaces: 3, TotalMatches: 2, MatchedUserIDs: []uuid.UUID{alice, bob},
			},
			wantTypes: []EventType{EventPhotoProcessed, EventUserIdentified, EventUserIdentified},
			wantOK:    true,
		},
		{
			name: "rematch without matches",
			event: domain.PhotoProcessedEvent{
				PhotoID: photoID, UploaderID: uploader, Status: domain.StatusCompleted, Rematch: true,
			},
			wantTypes: []EventType{EventPhotoRematched},
			wantOK:    true,
		},
		{
			name: "failed pass",
			event: domain.PhotoProcessedEvent{
				PhotoID: photoID, UploaderID: uploader, Status: domain.StatusFailed, ErrorReason: "invalid image",
			},
			wantTypes: []EventType{EventPhotoProcessed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingLogger{}
			require.NoError(t, NewTrail(rec, "mock").PublishPhotoProcessed(context.Background(), tt.event))

			require.Len(t, rec.events, len(tt.wantTypes))
			for i, want := range tt.wantTypes {
				assert.Equal(t, want, rec.events[i].EventType)
				assert.Equal(t, photoID, rec.events[i].PhotoID)
			}

			head := rec.events[0]
			assert.Equal(t, uploader, head.UserID)
			assert.Equal(t, tt.wantOK, head.Success)
			assert.Equal(t, tt.event.ErrorReason, head.Error)
			assert.Equal(t, string(tt.event.Status), head.Metadata["status"])

			for i, userID := range tt.event.MatchedUserIDs {
				assert.Equal(t, userID, rec.events[i+1].UserID)
			}
		})
	}
}

func TestTrail_LoggerError(t *testing.T) {
	rec := &recordingLogger{err: errors.New("disk full")}
	err := NewTrail(rec, "mock").PublishPhotoProcessed(context.Background(), domain.PhotoProcessedEvent{
		MatchedUserIDs: []uuid.UUID{uuid.New()},
	})
	assert.EqualError(t, err, "disk full")
}
