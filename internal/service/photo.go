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
	"github.com/saturnino-fabrica-de-software/facetag/internal/storage"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PhotoService is the query side of the pipeline plus the group upload
// entry point that hands new photos to the orchestrator.
type PhotoService struct {
	photos        PhotoStore
	images        storage.ImageStore
	orchestrator  *Orchestrator
	logger        *slog.Logger
	maxUploadSize int
	now           func() time.Time
}

func NewPhotoService(photos PhotoStore, images storage.ImageStore, orchestrator *Orchestrator, logger *slog.Logger, maxUploadSize int) *PhotoService {
	return &PhotoService{
		photos:        photos,
		images:        images,
		orchestrator:  orchestrator,
		logger:        logger,
		maxUploadSize: maxUploadSize,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// UploadGroup stores the image, creates the pending photo and runs the
// first processing pass before returning.
func (s *PhotoService) UploadGroup(ctx context.Context, uploaderID uuid.UUID, filename string, data []byte) (*domain.ProcessingOutcome, error) {
	if filename != "" && !imaging.AllowedFilename(filename) {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported file %q", filename))
	}
	info, err := imaging.Validate(data, s.maxUploadSize)
	if err != nil {
		return nil, err
	}

	key := storage.GroupKey(s.now(), info.Ext())
	if err := s.images.Put(ctx, key, data, info.ContentType()); err != nil {
		return nil, domain.ErrPersistenceFailure.WithError(fmt.Errorf("store group image: %w", err))
	}

	photo := &domain.Photo{
		UploaderID: uploaderID,
		Filename:   filename,
		ImageRef:   key,
	}
	if err := s.photos.CreatePhoto(ctx, photo); err != nil {
		if delErr := s.images.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("could not remove orphan group image", "key", key, "error", delErr)
		}
		return nil, domain.ErrPersistenceFailure.WithError(err)
	}

	s.logger.Info("group photo uploaded", "photo_id", photo.ID, "uploader_id", uploaderID, "bytes", len(data))

	return s.orchestrator.ProcessGroupPhoto(ctx, photo.ID, key)
}

// ListMine returns completed photos the user was matched in, newest upload
// first, each carrying only the user's own scores.
func (s *PhotoService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.MyPhoto, error) {
	limit, offset = Page(limit, offset)

	photos, err := s.photos.ListPhotosMatchingUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}

	out := make([]domain.MyPhoto, 0, len(photos))
	for _, p := range photos {
		out = append(out, domain.NewMyPhoto(p, userID))
	}
	return out, nil
}

func (s *PhotoService) ListUploaded(ctx context.Context, uploaderID uuid.UUID, limit, offset int) ([]domain.Photo, error) {
	limit, offset = Page(limit, offset)

	photos, err := s.photos.ListUploadedBy(ctx, uploaderID, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}
	return photos, nil
}

// GetDetail returns the full photo with every user's matches. Only the
// uploader and users matched in the photo may see it.
func (s *PhotoService) GetDetail(ctx context.Context, requesterID, photoID uuid.UUID) (*domain.Photo, error) {
	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, storeError(err)
	}
	if !photo.VisibleTo(requesterID) {
		return nil, domain.ErrForbidden
	}
	return photo, nil
}

// GetImage returns the stored bytes of a photo under the GetDetail rule.
func (s *PhotoService) GetImage(ctx context.Context, requesterID, photoID uuid.UUID) ([]byte, error) {
	photo, err := s.GetDetail(ctx, requesterID, photoID)
	if err != nil {
		return nil, err
	}

	data, err := s.images.Get(ctx, photo.ImageRef)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, domain.ErrNotFound.WithError(err)
		}
		return nil, domain.ErrPersistenceFailure.WithError(err)
	}
	return data, nil
}

func (s *PhotoService) Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	stats, err := s.photos.Stats(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	return stats, nil
}

// Rematch lets the uploader ask for a new matching pass.
func (s *PhotoService) Rematch(ctx context.Context, requesterID, photoID uuid.UUID) (*domain.ProcessingOutcome, error) {
	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, storeError(err)
	}
	if photo.UploaderID != requesterID {
		return nil, domain.ErrForbidden
	}
	return s.orchestrator.Rematch(ctx, photoID)
}

// Page applies the listing defaults: limit in [1, MaxPageSize] (DefaultPageSize
// when unset) and a non-negative offset.
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
