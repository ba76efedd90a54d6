package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// ProfileStore is the profile registry as seen by the services. Both the
// Postgres and the Mongo backends implement it.
type ProfileStore interface {
	GetProfileEmbedding(ctx context.Context, userID uuid.UUID) (*domain.ProfileEmbedding, error)
	ListAllProfilesWithEmbeddings(ctx context.Context) ([]domain.ProfileEmbedding, error)
	// ReplaceEmbedding returns the new embedding version and the photo
	// reference it replaced ("" on first upload).
	ReplaceEmbedding(ctx context.Context, userID uuid.UUID, embedding []float64, photoRef string) (int64, string, error)
}

type PhotoStore interface {
	CreatePhoto(ctx context.Context, photo *domain.Photo) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Photo, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.PhotoStatus) (bool, error)
	WritePhotoResult(ctx context.Context, id uuid.UUID, faces []domain.Face, totalMatches int, status domain.PhotoStatus) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListPhotosMatchingUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Photo, error)
	ListUploadedBy(ctx context.Context, uploaderID uuid.UUID, limit, offset int) ([]domain.Photo, error)
	Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error)
	ListIDsByStatus(ctx context.Context, status domain.PhotoStatus) ([]uuid.UUID, error)
	ListStaleProcessing(ctx context.Context, before time.Time) ([]uuid.UUID, error)
}

type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// EventPublisher receives pipeline events after they are persisted.
// Publishing is best effort: errors are logged, never returned to callers.
type EventPublisher interface {
	PublishPhotoProcessed(ctx context.Context, event domain.PhotoProcessedEvent) error
	PublishProfileUpdated(ctx context.Context, event domain.ProfileUpdatedEvent) error
}

// Metrics is implemented by the prometheus collectors in internal/metrics.
type Metrics interface {
	PassStarted()
	PassFinished(outcome string, faces, matches int, elapsed time.Duration)
	ObserveEmbedding(elapsed time.Duration)
	ObserveMatching(elapsed time.Duration)
}

type TokenIssuer interface {
	GenerateToken(userID uuid.UUID, username string) (string, time.Time, error)
}

type nopPublisher struct{}

func (nopPublisher) PublishPhotoProcessed(context.Context, domain.PhotoProcessedEvent) error {
	return nil
}

func (nopPublisher) PublishProfileUpdated(context.Context, domain.ProfileUpdatedEvent) error {
	return nil
}

type nopMetrics struct{}

func (nopMetrics) PassStarted()                                 {}
func (nopMetrics) PassFinished(string, int, int, time.Duration) {}
func (nopMetrics) ObserveEmbedding(time.Duration)               {}
func (nopMetrics) ObserveMatching(time.Duration)                {}
