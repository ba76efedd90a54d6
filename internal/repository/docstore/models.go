package docstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// Identifiers are stored as canonical uuid strings.

type userDoc struct {
	ID                 string     `bson:"_id"`
	Username           string     `bson:"username"`
	Email              string     `bson:"email"`
	PasswordHash       string     `bson:"password_hash"`
	ProfilePhotoRef    string     `bson:"profile_photo_ref"`
	Embedding          []float64  `bson:"embedding,omitempty"`
	EmbeddingVersion   int64      `bson:"embedding_version"`
	EmbeddingUpdatedAt *time.Time `bson:"embedding_updated_at,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

type photoDoc struct {
	ID                  string     `bson:"_id"`
	UploaderID          string     `bson:"uploader_id"`
	Filename            string     `bson:"filename"`
	ImageRef            string     `bson:"image_ref"`
	Status              string     `bson:"status"`
	Faces               []faceDoc  `bson:"faces"`
	MatchedUserIDs      []string   `bson:"matched_user_ids"`
	TotalMatches        int        `bson:"total_matches"`
	ErrorReason         string     `bson:"error_reason"`
	UploadedAt          time.Time  `bson:"uploaded_at"`
	ProcessingStartedAt *time.Time `bson:"processing_started_at,omitempty"`
	ProcessedAt         *time.Time `bson:"processed_at,omitempty"`
	UpdatedAt           time.Time  `bson:"updated_at"`
}

type faceDoc struct {
	FaceIndex          int        `bson:"face_index"`
	BBox               bboxDoc    `bson:"bbox"`
	DetectorConfidence float64    `bson:"detector_confidence"`
	Embedding          []float64  `bson:"embedding"`
	Matches            []matchDoc `bson:"matches"`
}

type bboxDoc struct {
	X      float64 `bson:"x"`
	Y      float64 `bson:"y"`
	Width  float64 `bson:"width"`
	Height float64 `bson:"height"`
}

type matchDoc struct {
	UserID                         string    `bson:"user_id"`
	SimilarityScore                float64   `bson:"similarity_score"`
	MatchedAgainstEmbeddingVersion int64     `bson:"matched_against_embedding_version"`
	MatchedAt                      time.Time `bson:"matched_at"`
}

func (d *userDoc) toDomain() (*domain.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("user id %q: %w", d.ID, err)
	}
	return &domain.User{
		ID:                 id,
		Username:           d.Username,
		Email:              d.Email,
		PasswordHash:       d.PasswordHash,
		ProfilePhotoRef:    d.ProfilePhotoRef,
		Embedding:          d.Embedding,
		EmbeddingVersion:   d.EmbeddingVersion,
		EmbeddingUpdatedAt: d.EmbeddingUpdatedAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}, nil
}

func facesToDocs(faces []domain.Face) ([]faceDoc, []string) {
	docs := make([]faceDoc, 0, len(faces))
	for _, f := range faces {
		matches := make([]matchDoc, 0, len(f.Matches))
		for _, m := range f.Matches {
			matches = append(matches, matchDoc{
				UserID:                         m.UserID.String(),
				SimilarityScore:                m.SimilarityScore,
				MatchedAgainstEmbeddingVersion: m.MatchedAgainstEmbeddingVersion,
				MatchedAt:                      m.MatchedAt,
			})
		}
		docs = append(docs, faceDoc{
			FaceIndex: f.FaceIndex,
			BBox: bboxDoc{
				X:      f.BoundingBox.X,
				Y:      f.BoundingBox.Y,
				Width:  f.BoundingBox.Width,
				Height: f.BoundingBox.Height,
			},
			DetectorConfidence: f.DetectorConfidence,
			Embedding:          f.Embedding,
			Matches:            matches,
		})
	}

	matched := make([]string, 0)
	for _, id := range (&domain.Photo{Faces: faces}).MatchedUserIDs() {
		matched = append(matched, id.String())
	}
	return docs, matched
}

func (d *photoDoc) toDomain() (*domain.Photo, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("photo id %q: %w", d.ID, err)
	}
	uploader, err := uuid.Parse(d.UploaderID)
	if err != nil {
		return nil, fmt.Errorf("uploader id %q: %w", d.UploaderID, err)
	}

	faces := make([]domain.Face, 0, len(d.Faces))
	for _, f := range d.Faces {
		matches := make([]domain.Match, 0, len(f.Matches))
		for _, m := range f.Matches {
			userID, err := uuid.Parse(m.UserID)
			if err != nil {
				return nil, fmt.Errorf("match user id %q: %w", m.UserID, err)
			}
			matches = append(matches, domain.Match{
				UserID:                         userID,
				SimilarityScore:                m.SimilarityScore,
				MatchedAgainstEmbeddingVersion: m.MatchedAgainstEmbeddingVersion,
				MatchedAt:                      m.MatchedAt,
			})
		}
		faces = append(faces, domain.Face{
			FaceIndex: f.FaceIndex,
			BoundingBox: domain.BoundingBox{
				X:      f.BBox.X,
				Y:      f.BBox.Y,
				Width:  f.BBox.Width,
				Height: f.BBox.Height,
			},
			DetectorConfidence: f.DetectorConfidence,
			Embedding:          f.Embedding,
			Matches:            matches,
		})
	}

	return &domain.Photo{
		ID:                  id,
		UploaderID:          uploader,
		Filename:            d.Filename,
		ImageRef:            d.ImageRef,
		Status:              domain.PhotoStatus(d.Status),
		Faces:               faces,
		TotalMatches:        d.TotalMatches,
		ErrorReason:         d.ErrorReason,
		UploadedAt:          d.UploadedAt,
		ProcessingStartedAt: d.ProcessingStartedAt,
		ProcessedAt:         d.ProcessedAt,
		UpdatedAt:           d.UpdatedAt,
	}, nil
}
