package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// PhotoRepository persists group photos. Faces and their matches live in a
// JSONB column so that a processing result is always one row update.
type PhotoRepository struct {
	pool PgxPool
}

func NewPhotoRepository(pool PgxPool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

const photoColumns = `id, uploader_id, filename, image_ref, status, faces, total_matches, error_reason, uploaded_at, processing_started_at, processed_at, updated_at`

func (r *PhotoRepository) CreatePhoto(ctx context.Context, photo *domain.Photo) error {
	query := `
		INSERT INTO photos (id, uploader_id, filename, image_ref, status, uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
		RETURNING uploaded_at, updated_at
	`

	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		photo.ID,
		photo.UploaderID,
		photo.Filename,
		photo.ImageRef,
	).Scan(&photo.UploadedAt, &photo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create photo: %w", err)
	}

	photo.Status = domain.StatusPending
	photo.Faces = []domain.Face{}
	photo.TotalMatches = 0
	return nil
}

func (r *PhotoRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`

	photo, err := scanPhoto(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return photo, nil
}

// CompareAndSetStatus moves the photo from expected to next only if it is
// still in expected. It reports whether this caller won the transition.
func (r *PhotoRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.PhotoStatus) (bool, error) {
	query := `
		UPDATE photos
		SET status = $3,
			processing_started_at = CASE WHEN $3 = 'processing' THEN NOW() ELSE NULL END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.pool.Exec(ctx, query, id, string(expected), string(next))
	if err != nil {
		return false, fmt.Errorf("compare and set photo status: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// WritePhotoResult stores faces, matches and the final status in one
// statement. It only applies while the photo is still processing.
func (r *PhotoRepository) WritePhotoResult(ctx context.Context, id uuid.UUID, faces []domain.Face, totalMatches int, status domain.PhotoStatus) error {
	query := `
		UPDATE photos
		SET faces = $2, matched_user_ids = $3, total_matches = $4, status = $5,
			error_reason = '', processing_started_at = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	if faces == nil {
		faces = []domain.Face{}
	}
	facesJSON, err := json.Marshal(faces)
	if err != nil {
		return fmt.Errorf("marshal faces: %w", err)
	}

	matched := (&domain.Photo{Faces: faces}).MatchedUserIDs()
	if matched == nil {
		matched = []uuid.UUID{}
	}

	result, err := r.pool.Exec(ctx, query, id, facesJSON, matched, totalMatches, string(status))
	if err != nil {
		return fmt.Errorf("write photo result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidStateTransition.WithError(fmt.Errorf("photo %s is no longer processing", id))
	}
	return nil
}

// MarkFailed ends a processing pass as failed and drops any face data.
func (r *PhotoRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE photos
		SET status = 'failed', faces = '[]'::jsonb, matched_user_ids = '{}', total_matches = 0,
			error_reason = $2, processing_started_at = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("mark photo failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidStateTransition.WithError(fmt.Errorf("photo %s is no longer processing", id))
	}
	return nil
}

// ListPhotosMatchingUser returns completed photos in which userID was
// matched, newest upload first.
func (r *PhotoRepository) ListPhotosMatchingUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Photo, error) {
	query := `SELECT ` + photoColumns + `
		FROM photos
		WHERE status = 'completed' AND $1 = ANY(matched_user_ids)
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, userID, limit, offset)
}

func (r *PhotoRepository) ListUploadedBy(ctx context.Context, uploaderID uuid.UUID, limit, offset int) ([]domain.Photo, error) {
	query := `SELECT ` + photoColumns + `
		FROM photos
		WHERE uploader_id = $1
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, uploaderID, limit, offset)
}

func (r *PhotoRepository) list(ctx context.Context, query string, args ...any) ([]domain.Photo, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	photos := []domain.Photo{}
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, *photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return photos, nil
}

// Stats counts uploads, photos the user appears in (not their own) and
// the number of faces matched to the user across completed photos.
func (r *PhotoRepository) Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM photos WHERE uploader_id = $1),
			(SELECT COUNT(*) FROM photos
				WHERE status = 'completed' AND $1 = ANY(matched_user_ids) AND uploader_id <> $1),
			(SELECT COUNT(*) FROM photos p, jsonb_array_elements(p.faces) AS f
				WHERE p.status = 'completed' AND $1 = ANY(p.matched_user_ids)
				AND f->'matches' @> jsonb_build_array(jsonb_build_object('user_id', $2::text)))
	`

	var stats domain.UserStats
	err := r.pool.QueryRow(ctx, query, userID, userID.String()).Scan(
		&stats.PhotosUploaded,
		&stats.PhotosAppearsIn,
		&stats.FaceAppearances,
	)
	if err != nil {
		return nil, fmt.Errorf("photo stats: %w", err)
	}
	return &stats, nil
}

func (r *PhotoRepository) ListIDsByStatus(ctx context.Context, status domain.PhotoStatus) ([]uuid.UUID, error) {
	query := `SELECT id FROM photos WHERE status = $1 ORDER BY uploaded_at DESC, id DESC`
	return r.listIDs(ctx, query, string(status))
}

// ListStaleProcessing returns photos that entered processing before the cutoff.
func (r *PhotoRepository) ListStaleProcessing(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	query := `SELECT id FROM photos WHERE status = 'processing' AND processing_started_at < $1 ORDER BY processing_started_at`
	return r.listIDs(ctx, query, before)
}

func (r *PhotoRepository) listIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list photo ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan photo id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo ids: %w", err)
	}
	return ids, nil
}

func (r *PhotoRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanPhoto(row pgx.Row) (*domain.Photo, error) {
	var photo domain.Photo
	var status string
	var facesJSON []byte

	err := row.Scan(
		&photo.ID,
		&photo.UploaderID,
		&photo.Filename,
		&photo.ImageRef,
		&status,
		&facesJSON,
		&photo.TotalMatches,
		&photo.ErrorReason,
		&photo.UploadedAt,
		&photo.ProcessingStartedAt,
		&photo.ProcessedAt,
		&photo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	photo.Status = domain.PhotoStatus(status)
	photo.Faces = []domain.Face{}
	if len(facesJSON) > 0 {
		if err := json.Unmarshal(facesJSON, &photo.Faces); err != nil {
			return nil, fmt.Errorf("decode faces of photo %s: %w", photo.ID, err)
		}
	}
	return &photo, nil
}
