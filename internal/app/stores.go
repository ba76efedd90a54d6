// Package app opens the backends selected by configuration. The API server
// and facetagctl share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/facetag/internal/config"
	"github.com/saturnino-fabrica-de-software/facetag/internal/database"
	"github.com/saturnino-fabrica-de-software/facetag/internal/repository"
	"github.com/saturnino-fabrica-de-software/facetag/internal/repository/docstore"
	"github.com/saturnino-fabrica-de-software/facetag/internal/service"
	"github.com/saturnino-fabrica-de-software/facetag/internal/similarity"
	"github.com/saturnino-fabrica-de-software/facetag/internal/storage"
)

// UserStore is what both backends offer for accounts and profiles.
type UserStore interface {
	service.UserStore
	service.ProfileStore
	Ping(ctx context.Context) error
}

type PhotoStore interface {
	service.PhotoStore
	Ping(ctx context.Context) error
}

// OpenStores connects to STORE_BACKEND. Postgres is migrated to the latest
// schema first. The returned func releases the connection.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (UserStore, PhotoStore, func(), error) {
	switch cfg.StoreBackend {
	case "mongo":
		client, db, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := docstore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, err
		}
		logger.Info("connected to mongo", slog.String("database", cfg.MongoDatabase))

		closeFn := func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(shutdownCtx)
		}
		return docstore.NewUserStore(db), docstore.NewPhotoStore(db), closeFn, nil

	default:
		migrator, err := database.NewMigratorFromDSN(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open migrator: %w", err)
		}
		err = migrator.Up()
		_ = migrator.Close()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("connected to postgres")

		return repository.NewUserRepository(pool), repository.NewPhotoRepository(pool), pool.Close, nil
	}
}

// OpenImageStore returns the MinIO bucket or the local upload directory.
func OpenImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	if cfg.ImageStore == "minio" {
		store, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload dir: %w", err)
	}
	return store, nil
}

// NewMatcher builds the matcher from MATCH_THRESHOLD and MATCH_POLICY.
func NewMatcher(cfg *config.Config) (*similarity.Matcher, error) {
	policy, err := similarity.ParsePolicy(cfg.MatchPolicy)
	if err != nil {
		return nil, err
	}
	return similarity.NewMatcher(cfg.MatchThreshold, policy), nil
}

func OrchestratorConfig(cfg *config.Config) service.OrchestratorConfig {
	orchCfg := service.DefaultOrchestratorConfig()
	orchCfg.EmbeddingTimeout = cfg.EmbeddingTimeout
	orchCfg.Dimension = cfg.EmbeddingDimension
	return orchCfg
}
