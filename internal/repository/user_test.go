package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

func TestUserRepository_Create(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "successful creation",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "alice", "alice@example.com", "hash").
					WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
			},
		},
		{
			name: "duplicate username",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "alice", "alice@example.com", "hash").
					WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
			},
			wantErr: domain.ErrUsernameTaken,
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "alice", "alice@example.com", "hash").
					WillReturnError(errors.New("disk full"))
			},
			wantErr: errors.New("create user"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			user := &domain.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
			err = NewUserRepository(mock).Create(context.Background(), user)

			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, domain.ErrUsernameTaken) {
					assert.ErrorIs(t, err, domain.ErrUsernameTaken)
				} else {
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
			} else {
				require.NoError(t, err)
				assert.NotEqual(t, uuid.Nil, user.ID)
				assert.Equal(t, now, user.CreatedAt)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_GetByUsername(t *testing.T) {
	userID := uuid.New()
	now := time.Now()
	embedding := pgvector.NewVector([]float32{1, 0, 0})

	columns := []string{"id", "username", "email", "password_hash", "profile_photo_ref", "embedding", "embedding_version", "embedding_updated_at", "created_at", "updated_at"}

	t.Run("user with profile", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users WHERE username = \$1`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(userID, "alice", "", "hash", "profiles/p.jpg", &embedding, int64(2), &now, now, now))

		user, err := NewUserRepository(mock).GetByUsername(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
		assert.Equal(t, []float64{1, 0, 0}, user.Embedding)
		assert.Equal(t, int64(2), user.EmbeddingVersion)
		assert.True(t, user.HasProfile())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("user without profile", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users WHERE id = \$1`).
			WithArgs(userID).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(userID, "bob", "", "hash", "", nil, int64(0), nil, now, now))

		user, err := NewUserRepository(mock).GetByID(context.Background(), userID)
		require.NoError(t, err)
		assert.Nil(t, user.Embedding)
		assert.False(t, user.HasProfile())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users WHERE username = \$1`).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err = NewUserRepository(mock).GetByUsername(context.Background(), "ghost")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_GetProfileEmbedding(t *testing.T) {
	userID := uuid.New()
	embedding := pgvector.NewVector([]float32{0, 1})

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		want      *domain.ProfileEmbedding
		wantErr   error
	}{
		{
			name: "embedding present",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT embedding, embedding_version FROM users WHERE id = \$1`).
					WithArgs(userID).
					WillReturnRows(pgxmock.NewRows([]string{"embedding", "embedding_version"}).AddRow(&embedding, int64(5)))
			},
			want: &domain.ProfileEmbedding{UserID: userID, Embedding: []float64{0, 1}, Version: 5},
		},
		{
			name: "no profile yet",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT embedding, embedding_version FROM users WHERE id = \$1`).
					WithArgs(userID).
					WillReturnRows(pgxmock.NewRows([]string{"embedding", "embedding_version"}).AddRow(nil, int64(0)))
			},
			want: nil,
		},
		{
			name: "unknown user",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT embedding, embedding_version FROM users WHERE id = \$1`).
					WithArgs(userID).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			got, err := NewUserRepository(mock).GetProfileEmbedding(context.Background(), userID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_ListAllProfilesWithEmbeddings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a, b := uuid.New(), uuid.New()
	ea := pgvector.NewVector([]float32{1, 0})
	eb := pgvector.NewVector([]float32{0, 1})

	mock.ExpectQuery(`SELECT id, embedding, embedding_version FROM users WHERE embedding IS NOT NULL ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "embedding", "embedding_version"}).
			AddRow(a, &ea, int64(1)).
			AddRow(b, &eb, int64(3)))

	profiles, err := NewUserRepository(mock).ListAllProfilesWithEmbeddings(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, domain.ProfileEmbedding{UserID: a, Embedding: []float64{1, 0}, Version: 1}, profiles[0])
	assert.Equal(t, domain.ProfileEmbedding{UserID: b, Embedding: []float64{0, 1}, Version: 3}, profiles[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ReplaceEmbedding(t *testing.T) {
	userID := uuid.New()

	t.Run("bumps version", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`UPDATE users SET embedding = \$2, embedding_version = embedding_version \+ 1.*FOR UPDATE.*RETURNING users.embedding_version, prev.profile_photo_ref`).
			WithArgs(userID, pgxmock.AnyArg(), "profiles/p.jpg", pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"embedding_version", "profile_photo_ref"}).AddRow(int64(4), "profiles/old.jpg"))

		version, previous, err := NewUserRepository(mock).ReplaceEmbedding(context.Background(), userID, []float64{1, 0}, "profiles/p.jpg")
		require.NoError(t, err)
		assert.Equal(t, int64(4), version)
		assert.Equal(t, "profiles/old.jpg", previous)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`UPDATE users`).
			WithArgs(userID, pgxmock.AnyArg(), "profiles/p.jpg", pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)

		_, _, err = NewUserRepository(mock).ReplaceEmbedding(context.Background(), userID, []float64{1, 0}, "profiles/p.jpg")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
