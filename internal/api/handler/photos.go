package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetag/internal/service"
)

type PhotoQueries interface {
	ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.MyPhoto, error)
	ListUploaded(ctx context.Context, uploaderID uuid.UUID, limit, offset int) ([]domain.Photo, error)
	GetDetail(ctx context.Context, requesterID, photoID uuid.UUID) (*domain.Photo, error)
	GetImage(ctx context.Context, requesterID, photoID uuid.UUID) ([]byte, error)
	Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error)
	Rematch(ctx context.Context, requesterID, photoID uuid.UUID) (*domain.ProcessingOutcome, error)
}

type PhotoHandler struct {
	photos PhotoQueries
	logger *slog.Logger
}

func NewPhotoHandler(photos PhotoQueries, logger *slog.Logger) *PhotoHandler {
	return &PhotoHandler{
		photos: photos,
		logger: logger,
	}
}

type MyPhotosResponse struct {
	Photos []domain.MyPhoto `json:"photos"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// UploadedPhoto is a listing row of the caller's own uploads
type UploadedPhoto struct {
	PhotoID      uuid.UUID          `json:"photo_id"`
	Filename     string             `json:"filename"`
	Status       domain.PhotoStatus `json:"status"`
	NumFaces     int                `json:"num_faces"`
	TotalMatches int                `json:"total_matches"`
	UploadedAt   string             `json:"uploaded_at"`
}

type UploadedPhotosResponse struct {
	Photos []UploadedPhoto `json:"photos"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// PhotoDetailResponse is the full photo, embeddings left out
type PhotoDetailResponse struct {
	PhotoID      uuid.UUID           `json:"photo_id"`
	UploaderID   uuid.UUID           `json:"uploader_id"`
	Filename     string              `json:"filename"`
	Status       domain.PhotoStatus  `json:"status"`
	Faces        []domain.FaceResult `json:"faces"`
	TotalMatches int                 `json:"total_matches"`
	ErrorReason  string              `json:"error_reason,omitempty"`
	UploadedAt   string              `json:"uploaded_at"`
}

// Mine GET /api/photos/mine?limit=&offset=
func (h *PhotoHandler) Mine(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	limit, offset := service.Page(c.QueryInt("limit", 0), c.QueryInt("offset", 0))
	photos, err := h.photos.ListMine(c.UserContext(), userID, limit, offset)
	if err != nil {
		return err
	}
	if photos == nil {
		photos = []domain.MyPhoto{}
	}

	return c.JSON(MyPhotosResponse{Photos: photos, Limit: limit, Offset: offset})
}

// Uploaded GET /api/photos/uploaded?limit=&offset=
func (h *PhotoHandler) Uploaded(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	limit, offset := service.Page(c.QueryInt("limit", 0), c.QueryInt("offset", 0))
	photos, err := h.photos.ListUploaded(c.UserContext(), userID, limit, offset)
	if err != nil {
		return err
	}

	rows := make([]UploadedPhoto, 0, len(photos))
	for _, p := range photos {
		rows = append(rows, UploadedPhoto{
			PhotoID:      p.ID,
			Filename:     p.Filename,
			Status:       p.Status,
			NumFaces:     len(p.Faces),
			TotalMatches: p.TotalMatches,
			UploadedAt:   p.UploadedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(UploadedPhotosResponse{Photos: rows, Limit: limit, Offset: offset})
}

// Stats GET /api/photos/stats
func (h *PhotoHandler) Stats(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	stats, err := h.photos.Stats(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return c.JSON(stats)
}

// Detail GET /api/photos/:id
func (h *PhotoHandler) Detail(c *fiber.Ctx) error {
	userID, photoID, err := h.userAndPhoto(c)
	if err != nil {
		return err
	}

	photo, err := h.photos.GetDetail(c.UserContext(), userID, photoID)
	if err != nil {
		return err
	}

	return c.JSON(PhotoDetailResponse{
		PhotoID:      photo.ID,
		UploaderID:   photo.UploaderID,
		Filename:     photo.Filename,
		Status:       photo.Status,
		Faces:        domain.FaceResults(photo.Faces),
		TotalMatches: photo.TotalMatches,
		ErrorReason:  photo.ErrorReason,
		UploadedAt:   photo.UploadedAt.UTC().Format(time.RFC3339),
	})
}

// Image GET /api/photos/:id/image
func (h *PhotoHandler) Image(c *fiber.Ctx) error {
	userID, photoID, err := h.userAndPhoto(c)
	if err != nil {
		return err
	}

	data, err := h.photos.GetImage(c.UserContext(), userID, photoID)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, http.DetectContentType(data))
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	return c.Send(data)
}

// Rematch POST /api/photos/:id/rematch
func (h *PhotoHandler) Rematch(c *fiber.Ctx) error {
	userID, photoID, err := h.userAndPhoto(c)
	if err != nil {
		return err
	}

	outcome, err := h.photos.Rematch(c.UserContext(), userID, photoID)
	if err != nil {
		return err
	}

	h.logger.Info("rematch requested", "photo_id", photoID, "user_id", userID, "status", outcome.Status)

	return c.JSON(newGroupUploadResponse(outcome))
}

func (h *PhotoHandler) userAndPhoto(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	photoID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, domain.ErrPhotoNotFound.WithError(err)
	}
	return userID, photoID, nil
}
