package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

type PhotoStore struct {
	col *mongo.Collection
}

func NewPhotoStore(db *mongo.Database) *PhotoStore {
	return &PhotoStore{col: db.Collection(photosCollection)}
}

func (s *PhotoStore) CreatePhoto(ctx context.Context, photo *domain.Photo) error {
	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}
	now := time.Now().UTC()

	doc := photoDoc{
		ID:             photo.ID.String(),
		UploaderID:     photo.UploaderID.String(),
		Filename:       photo.Filename,
		ImageRef:       photo.ImageRef,
		Status:         string(domain.StatusPending),
		Faces:          []faceDoc{},
		MatchedUserIDs: []string{},
		UploadedAt:     now,
		UpdatedAt:      now,
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create photo: %w", err)
	}

	photo.Status = domain.StatusPending
	photo.Faces = []domain.Face{}
	photo.TotalMatches = 0
	photo.UploadedAt = now
	photo.UpdatedAt = now
	return nil
}

func (s *PhotoStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Photo, error) {
	var doc photoDoc
	err := s.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return doc.toDomain()
}

// CompareAndSetStatus is a filtered UpdateOne: only a document still in
// expected is modified, so at most one concurrent caller sees a match.
func (s *PhotoStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.PhotoStatus) (bool, error) {
	now := time.Now().UTC()
	set := bson.M{"status": string(next), "updated_at": now}
	update := bson.M{"$set": set}
	if next == domain.StatusProcessing {
		set["processing_started_at"] = now
	} else {
		update["$unset"] = bson.M{"processing_started_at": ""}
	}

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id.String(), "status": string(expected)}, update)
	if err != nil {
		return false, fmt.Errorf("compare and set photo status: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (s *PhotoStore) WritePhotoResult(ctx context.Context, id uuid.UUID, faces []domain.Face, totalMatches int, status domain.PhotoStatus) error {
	docs, matched := facesToDocs(faces)
	now := time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"faces":            docs,
			"matched_user_ids": matched,
			"total_matches":    totalMatches,
			"status":           string(status),
			"error_reason":     "",
			"processed_at":     now,
			"updated_at":       now,
		},
		"$unset": bson.M{"processing_started_at": ""},
	}
	return s.finishProcessing(ctx, id, update, "write photo result")
}

func (s *PhotoStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":           string(domain.StatusFailed),
			"faces":            bson.A{},
			"matched_user_ids": bson.A{},
			"total_matches":    0,
			"error_reason":     reason,
			"processed_at":     now,
			"updated_at":       now,
		},
		"$unset": bson.M{"processing_started_at": ""},
	}
	return s.finishProcessing(ctx, id, update, "mark photo failed")
}

func (s *PhotoStore) finishProcessing(ctx context.Context, id uuid.UUID, update bson.M, op string) error {
	filter := bson.M{"_id": id.String(), "status": string(domain.StatusProcessing)}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrInvalidStateTransition.WithError(fmt.Errorf("photo %s is no longer processing", id))
	}
	return nil
}

func (s *PhotoStore) ListPhotosMatchingUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Photo, error) {
	filter := bson.M{"status": string(domain.StatusCompleted), "matched_user_ids": userID.String()}
	return s.list(ctx, filter, limit, offset)
}

func (s *PhotoStore) ListUploadedBy(ctx context.Context, uploaderID uuid.UUID, limit, offset int) ([]domain.Photo, error) {
	return s.list(ctx, bson.M{"uploader_id": uploaderID.String()}, limit, offset)
}

func (s *PhotoStore) list(ctx context.Context, filter bson.M, limit, offset int) ([]domain.Photo, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "uploaded_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer cursor.Close(ctx)

	photos := []domain.Photo{}
	for cursor.Next(ctx) {
		var doc photoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode photo: %w", err)
		}
		photo, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		photos = append(photos, *photo)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return photos, nil
}

func (s *PhotoStore) Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	uid := userID.String()
	var stats domain.UserStats
	var err error

	stats.PhotosUploaded, err = s.col.CountDocuments(ctx, bson.M{"uploader_id": uid})
	if err != nil {
		return nil, fmt.Errorf("count uploads: %w", err)
	}

	stats.PhotosAppearsIn, err = s.col.CountDocuments(ctx, bson.M{
		"status":           string(domain.StatusCompleted),
		"matched_user_ids": uid,
		"uploader_id":      bson.M{"$ne": uid},
	})
	if err != nil {
		return nil, fmt.Errorf("count appearances: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": string(domain.StatusCompleted), "matched_user_ids": uid}}},
		{{Key: "$unwind", Value: "$faces"}},
		{{Key: "$unwind", Value: "$faces.matches"}},
		{{Key: "$match", Value: bson.M{"faces.matches.user_id": uid}}},
		{{Key: "$count", Value: "n"}},
	}
	cursor, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count face appearances: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		N int64 `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode face appearances: %w", err)
	}
	if len(rows) > 0 {
		stats.FaceAppearances = rows[0].N
	}
	return &stats, nil
}

func (s *PhotoStore) ListIDsByStatus(ctx context.Context, status domain.PhotoStatus) ([]uuid.UUID, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "uploaded_at", Value: -1}, {Key: "_id", Value: -1}})
	return s.listIDs(ctx, bson.M{"status": string(status)}, opts)
}

func (s *PhotoStore) ListStaleProcessing(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "processing_started_at", Value: 1}})
	filter := bson.M{
		"status":                string(domain.StatusProcessing),
		"processing_started_at": bson.M{"$lt": before.UTC()},
	}
	return s.listIDs(ctx, filter, opts)
}

func (s *PhotoStore) listIDs(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]uuid.UUID, error) {
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list photo ids: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []uuid.UUID
	for cursor.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode photo id: %w", err)
		}
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("photo id %q: %w", row.ID, err)
		}
		ids = append(ids, id)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo ids: %w", err)
	}
	return ids, nil
}

func (s *PhotoStore) Ping(ctx context.Context) error {
	return s.col.Database().Client().Ping(ctx, nil)
}
