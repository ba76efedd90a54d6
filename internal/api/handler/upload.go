package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// uploadField is the multipart field carrying the image
const uploadField = "file"

type ProfileUploader interface {
	UploadProfile(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*domain.ProfileUploadResult, error)
}

type GroupUploader interface {
	UploadGroup(ctx context.Context, uploaderID uuid.UUID, filename string, data []byte) (*domain.ProcessingOutcome, error)
}

type UploadHandler struct {
	profiles      ProfileUploader
	groups        GroupUploader
	maxUploadSize int64
	logger        *slog.Logger
}

func NewUploadHandler(profiles ProfileUploader, groups GroupUploader, maxUploadSize int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		profiles:      profiles,
		groups:        groups,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// GroupUploadResponse reports the first processing pass of a group photo
type GroupUploadResponse struct {
	PhotoID      uuid.UUID           `json:"photo_id"`
	Status       domain.PhotoStatus  `json:"status"`
	TotalFaces   int                 `json:"total_faces"`
	TotalMatches int                 `json:"total_matches"`
	Faces        []domain.FaceResult `json:"faces"`
	ErrorCode    string              `json:"error_code,omitempty"`
	ErrorReason  string              `json:"error_reason,omitempty"`
}

func newGroupUploadResponse(o *domain.ProcessingOutcome) GroupUploadResponse {
	faces := o.Faces
	if faces == nil {
		faces = []domain.FaceResult{}
	}
	return GroupUploadResponse{
		PhotoID:      o.PhotoID,
		Status:       o.Status,
		TotalFaces:   len(faces),
		TotalMatches: o.TotalMatches,
		Faces:        faces,
		ErrorCode:    o.ErrorCode,
		ErrorReason:  o.ErrorReason,
	}
}

// Profile POST /api/upload/profile
func (h *UploadHandler) Profile(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	filename, data, err := h.readUpload(c)
	if err != nil {
		return err
	}

	result, err := h.profiles.UploadProfile(c.UserContext(), userID, filename, data)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

// Group POST /api/upload/group
//
// A photo whose pass failed is still created, so the response is 201 with
// status failed and the error code of the pass.
func (h *UploadHandler) Group(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	filename, data, err := h.readUpload(c)
	if err != nil {
		return err
	}

	outcome, err := h.groups.UploadGroup(c.UserContext(), userID, filename, data)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(newGroupUploadResponse(outcome))
}

func (h *UploadHandler) readUpload(c *fiber.Ctx) (string, []byte, error) {
	file, err := c.FormFile(uploadField)
	if err != nil {
		return "", nil, domain.ErrValidationFailed.WithError(fmt.Errorf("form field %q: %w", uploadField, err))
	}

	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		return "", nil, domain.ErrImageTooLarge.WithError(fmt.Errorf("%d bytes", file.Size))
	}
	if file.Size == 0 {
		return "", nil, domain.ErrInvalidImage.WithError(fmt.Errorf("empty file"))
	}

	f, err := file.Open()
	if err != nil {
		return "", nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, domain.ErrInvalidImage.WithError(err)
	}

	return file.Filename, data, nil
}
