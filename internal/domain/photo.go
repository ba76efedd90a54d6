package domain

import (
	"time"

	"github.com/google/uuid"
)

type PhotoStatus string

const (
	StatusPending    PhotoStatus = "pending"
	StatusProcessing PhotoStatus = "processing"
	StatusCompleted  PhotoStatus = "completed"
	StatusFailed     PhotoStatus = "failed"
)

// IsTerminal reports whether the status ends a processing pass.
func (s PhotoStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s PhotoStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition encodes the photo lifecycle:
//
//	pending -> processing -> completed | failed
//	completed | failed -> processing   (rematch / retry only)
func CanTransition(from, to PhotoStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusProcessing
	}
	return false
}

// Photo é a foto de grupo enviada por um usuário
type Photo struct {
	ID                  uuid.UUID   `json:"photo_id"`
	UploaderID          uuid.UUID   `json:"uploader_id"`
	Filename            string      `json:"filename"`
	ImageRef            string      `json:"-"`
	Status              PhotoStatus `json:"status"`
	Faces               []Face      `json:"faces"`
	TotalMatches        int         `json:"total_matches"`
	ErrorReason         string      `json:"error_reason,omitempty"`
	UploadedAt          time.Time   `json:"uploaded_at"`
	ProcessingStartedAt *time.Time  `json:"-"`
	ProcessedAt         *time.Time  `json:"processed_at,omitempty"`
	UpdatedAt           time.Time   `json:"-"`
}

// MatchedUserIDs returns the distinct users matched anywhere in the photo.
func (p *Photo) MatchedUserIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, f := range p.Faces {
		for _, m := range f.Matches {
			if _, ok := seen[m.UserID]; ok {
				continue
			}
			seen[m.UserID] = struct{}{}
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// VisibleTo reports whether userID uploaded the photo or was matched in it.
func (p *Photo) VisibleTo(userID uuid.UUID) bool {
	if p.UploaderID == userID {
		return true
	}
	for _, f := range p.Faces {
		for _, m := range f.Matches {
			if m.UserID == userID {
				return true
			}
		}
	}
	return false
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Face is one detected face inside a group photo. FaceIndex is the
// detection order and stays stable across rematches.
type Face struct {
	FaceIndex          int         `json:"face_index"`
	BoundingBox        BoundingBox `json:"bbox"`
	DetectorConfidence float64     `json:"detector_confidence"`
	Embedding          []float64   `json:"embedding,omitempty"`
	Matches            []Match     `json:"matches"`
}

type Match struct {
	UserID                         uuid.UUID `json:"user_id"`
	SimilarityScore                float64   `json:"similarity_score"`
	MatchedAgainstEmbeddingVersion int64     `json:"matched_against_embedding_version"`
	MatchedAt                      time.Time `json:"matched_at"`
}

// FaceResult is the public view of a face, without its embedding.
type FaceResult struct {
	FaceIndex          int         `json:"face_index"`
	BoundingBox        BoundingBox `json:"bbox"`
	DetectorConfidence float64     `json:"detector_confidence"`
	Matches            []Match     `json:"matches"`
}

func FaceResults(faces []Face) []FaceResult {
	out := make([]FaceResult, 0, len(faces))
	for _, f := range faces {
		matches := f.Matches
		if matches == nil {
			matches = []Match{}
		}
		out = append(out, FaceResult{
			FaceIndex:          f.FaceIndex,
			BoundingBox:        f.BoundingBox,
			DetectorConfidence: f.DetectorConfidence,
			Matches:            matches,
		})
	}
	return out
}

// ProcessingOutcome is what a processing pass reports back to its caller.
// A failed pass is still an outcome; ErrorCode carries the error kind.
type ProcessingOutcome struct {
	PhotoID      uuid.UUID    `json:"photo_id"`
	Status       PhotoStatus  `json:"status"`
	Faces        []FaceResult `json:"faces"`
	TotalMatches int          `json:"total_matches"`
	ErrorCode    string       `json:"error_code,omitempty"`
	ErrorReason  string       `json:"error_reason,omitempty"`
}

// FaceScore is the per-face score shown in a user's own photo listing.
type FaceScore struct {
	FaceIndex       int     `json:"face_index"`
	SimilarityScore float64 `json:"similarity_score"`
}

// MyPhoto is a completed photo in which the requesting user appears.
type MyPhoto struct {
	PhotoID    uuid.UUID   `json:"photo_id"`
	Filename   string      `json:"filename"`
	UploaderID uuid.UUID   `json:"uploader_id"`
	UploadedAt time.Time   `json:"uploaded_at"`
	NumFaces   int         `json:"num_faces"`
	Matches    []FaceScore `json:"matches"`
}

// NewMyPhoto projects p for userID. Only the user's own matches are kept.
func NewMyPhoto(p Photo, userID uuid.UUID) MyPhoto {
	mp := MyPhoto{
		PhotoID:    p.ID,
		Filename:   p.Filename,
		UploaderID: p.UploaderID,
		UploadedAt: p.UploadedAt,
		NumFaces:   len(p.Faces),
		Matches:    []FaceScore{},
	}
	for _, f := range p.Faces {
		for _, m := range f.Matches {
			if m.UserID == userID {
				mp.Matches = append(mp.Matches, FaceScore{FaceIndex: f.FaceIndex, SimilarityScore: m.SimilarityScore})
			}
		}
	}
	return mp
}

type UserStats struct {
	PhotosUploaded  int64 `json:"photos_uploaded"`
	PhotosAppearsIn int64 `json:"photos_appears_in"`
	FaceAppearances int64 `json:"face_appearances"`
}
