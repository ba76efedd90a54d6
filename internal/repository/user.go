package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// UserRepository stores accounts together with their profile embedding.
type UserRepository struct {
	pool PgxPool
}

func NewUserRepository(pool PgxPool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, email, password_hash, profile_photo_ref, embedding, embedding_version, embedding_updated_at, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUsernameTaken
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.getOne(ctx, query, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	var embedding *pgvector.Vector

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.ProfilePhotoRef,
		&embedding,
		&user.EmbeddingVersion,
		&user.EmbeddingUpdatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	user.Embedding = fromVector(embedding)
	return &user, nil
}

// GetProfileEmbedding returns nil without error when the user exists but
// has not completed a profile upload yet.
func (r *UserRepository) GetProfileEmbedding(ctx context.Context, userID uuid.UUID) (*domain.ProfileEmbedding, error) {
	query := `SELECT embedding, embedding_version FROM users WHERE id = $1`

	var embedding *pgvector.Vector
	var version int64

	err := r.pool.QueryRow(ctx, query, userID).Scan(&embedding, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile embedding: %w", err)
	}

	values := fromVector(embedding)
	if values == nil {
		return nil, nil
	}
	return &domain.ProfileEmbedding{UserID: userID, Embedding: values, Version: version}, nil
}

// ListAllProfilesWithEmbeddings reads every registered profile in one
// statement, so the result is a single consistent snapshot.
func (r *UserRepository) ListAllProfilesWithEmbeddings(ctx context.Context) ([]domain.ProfileEmbedding, error) {
	query := `
		SELECT id, embedding, embedding_version
		FROM users
		WHERE embedding IS NOT NULL
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.ProfileEmbedding
	for rows.Next() {
		var p domain.ProfileEmbedding
		var embedding *pgvector.Vector
		if err := rows.Scan(&p.UserID, &embedding, &p.Version); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.Embedding = fromVector(embedding)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}

// ReplaceEmbedding swaps the profile embedding and bumps its version in a
// single UPDATE. Readers see either the old row or the new one. The photo
// reference it replaced comes back alongside the new version.
func (r *UserRepository) ReplaceEmbedding(ctx context.Context, userID uuid.UUID, embedding []float64, photoRef string) (int64, string, error) {
	query := `
		UPDATE users
		SET embedding = $2, embedding_version = embedding_version + 1, profile_photo_ref = $3,
			embedding_updated_at = $4, updated_at = NOW()
		FROM (SELECT id, profile_photo_ref FROM users WHERE id = $1 FOR UPDATE) prev
		WHERE users.id = prev.id
		RETURNING users.embedding_version, prev.profile_photo_ref
	`

	var version int64
	var previous string
	err := r.pool.QueryRow(ctx, query, userID, toVector(embedding), photoRef, time.Now().UTC()).Scan(&version, &previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", domain.ErrUserNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("replace embedding: %w", err)
	}

	return version, previous, nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
