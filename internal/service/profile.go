package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetag/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facetag/internal/provider"
	"github.com/saturnino-fabrica-de-software/facetag/internal/storage"
)

type ProfileConfig struct {
	EmbeddingTimeout time.Duration
	Dimension        int
	MaxUploadSize    int
}

// ProfileService accepts profile photos and replaces the user's reference
// embedding. It never touches photos.
type ProfileService struct {
	profiles ProfileStore
	images   storage.ImageStore
	source   provider.EmbeddingSource
	events   EventPublisher
	logger   *slog.Logger
	cfg      ProfileConfig
}

func NewProfileService(
	profiles ProfileStore,
	images storage.ImageStore,
	source provider.EmbeddingSource,
	logger *slog.Logger,
	cfg ProfileConfig,
) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		images:   images,
		source:   source,
		events:   nopPublisher{},
		logger:   logger,
		cfg:      cfg,
	}
}

func (s *ProfileService) WithEvents(events EventPublisher) *ProfileService {
	s.events = events
	return s
}

// UploadProfile validates the image, requires exactly one face and swaps
// the user's embedding in one write. The stored image is removed again if
// the embedding could not be saved.
func (s *ProfileService) UploadProfile(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*domain.ProfileUploadResult, error) {
	if filename != "" && !imaging.AllowedFilename(filename) {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported file %q", filename))
	}
	info, err := imaging.Validate(data, s.cfg.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	detected, err := s.detect(ctx, data)
	if err != nil {
		return nil, err
	}

	switch {
	case len(detected) == 0:
		return nil, domain.ErrNoFaceDetected
	case len(detected) > 1:
		return nil, domain.ErrMultipleFaces.WithError(fmt.Errorf("%d faces", len(detected)))
	}

	face := detected[0]
	if len(face.Embedding) != s.cfg.Dimension {
		s.logger.Error("embedding source returned wrong dimension",
			"user_id", userID, "got", len(face.Embedding), "want", s.cfg.Dimension)
		return nil, domain.ErrDimensionMismatch.WithError(fmt.Errorf("got %d values, want %d", len(face.Embedding), s.cfg.Dimension))
	}

	key := storage.ProfileKey(userID, info.Ext())
	if err := s.images.Put(ctx, key, data, info.ContentType()); err != nil {
		return nil, domain.ErrPersistenceFailure.WithError(fmt.Errorf("store profile image: %w", err))
	}

	version, previous, err := s.profiles.ReplaceEmbedding(ctx, userID, face.Embedding, key)
	if err != nil {
		if delErr := s.images.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("could not remove orphan profile image", "key", key, "error", delErr)
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, domain.ErrPersistenceFailure.WithError(err)
	}

	s.logger.Info("profile embedding replaced", "user_id", userID, "embedding_version", version)

	if previous != "" && previous != key {
		if err := s.images.Delete(context.WithoutCancel(ctx), previous); err != nil {
			s.logger.Warn("could not remove previous profile image", "key", previous, "error", err)
		}
	}

	event := domain.ProfileUpdatedEvent{UserID: userID, EmbeddingVersion: version, OccurredAt: time.Now().UTC()}
	if err := s.events.PublishProfileUpdated(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("publish profile event failed", "user_id", userID, "error", err)
	}

	return &domain.ProfileUploadResult{
		FaceDetected:       true,
		DetectorConfidence: face.Confidence,
		EmbeddingVersion:   version,
	}, nil
}

func (s *ProfileService) detect(ctx context.Context, data []byte) ([]provider.DetectedFace, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
	defer cancel()

	detected, err := s.source.Detect(ctx, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrEmbeddingSourceTimeout.WithError(err)
		}
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, domain.ErrEmbeddingSourceFailure.WithError(err)
	}
	return detected, nil
}
