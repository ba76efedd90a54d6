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

type UserStore struct {
	col *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{col: db.Collection(usersCollection)}
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	doc := userDoc{
		ID:           user.ID.String(),
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUsernameTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	err := s.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return doc.toDomain()
}

// GetProfileEmbedding returns nil without error when the user has no
// embedding yet.
func (s *UserStore) GetProfileEmbedding(ctx context.Context, userID uuid.UUID) (*domain.ProfileEmbedding, error) {
	opts := options.FindOne().SetProjection(bson.M{"embedding": 1, "embedding_version": 1})

	var doc userDoc
	err := s.col.FindOne(ctx, bson.M{"_id": userID.String()}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile embedding: %w", err)
	}
	if len(doc.Embedding) == 0 {
		return nil, nil
	}
	return &domain.ProfileEmbedding{UserID: userID, Embedding: doc.Embedding, Version: doc.EmbeddingVersion}, nil
}

// ListAllProfilesWithEmbeddings reads the registry with one cursor.
// Embedding replacement is a single-document update, so each profile is
// either the old or the new version.
func (s *UserStore) ListAllProfilesWithEmbeddings(ctx context.Context) ([]domain.ProfileEmbedding, error) {
	opts := options.Find().
		SetProjection(bson.M{"embedding": 1, "embedding_version": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.col.Find(ctx, bson.M{"embedding": bson.M{"$exists": true, "$ne": bson.A{}}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer cursor.Close(ctx)

	var profiles []domain.ProfileEmbedding
	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("profile id %q: %w", doc.ID, err)
		}
		profiles = append(profiles, domain.ProfileEmbedding{
			UserID:    id,
			Embedding: doc.Embedding,
			Version:   doc.EmbeddingVersion,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// ReplaceEmbedding reads the document as it was before the update, so the
// previous photo reference is known; $inc makes the new version exactly one
// above it.
func (s *UserStore) ReplaceEmbedding(ctx context.Context, userID uuid.UUID, embedding []float64, photoRef string) (int64, string, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"embedding":            embedding,
			"profile_photo_ref":    photoRef,
			"embedding_updated_at": now,
			"updated_at":           now,
		},
		"$inc": bson.M{"embedding_version": 1},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"embedding_version": 1, "profile_photo_ref": 1})

	var doc userDoc
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": userID.String()}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, "", domain.ErrUserNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("replace embedding: %w", err)
	}
	return doc.EmbeddingVersion + 1, doc.ProfilePhotoRef, nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	return s.col.Database().Client().Ping(ctx, nil)
}
