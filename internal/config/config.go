package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Storage backend for users and photos
	StoreBackend  string `envconfig:"STORE_BACKEND" default:"postgres"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"facetag"`

	// Embedding source
	EmbeddingProvider  string        `envconfig:"EMBEDDING_PROVIDER" default:"deepface"`
	DeepFaceURL        string        `envconfig:"DEEPFACE_URL" default:"http://localhost:5000"`
	DeepFaceModel      string        `envconfig:"DEEPFACE_MODEL" default:"Facenet"`
	DeepFaceDetector   string        `envconfig:"DEEPFACE_DETECTOR" default:"mtcnn"`
	EmbeddingTimeout   time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	EmbeddingDimension int           `envconfig:"EMBEDDING_DIMENSION" default:"128"`

	// Matching
	MatchThreshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.6"`
	MatchPolicy    string  `envconfig:"MATCH_POLICY" default:"multi"`

	// Security
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	// Image storage
	ImageStore     string `envconfig:"IMAGE_STORE" default:"local"`
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads"`
	MinIOEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinIOAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinIOBucket    string `envconfig:"MINIO_BUCKET" default:"facetag"`
	MinIOUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	MaxUploadSize  int    `envconfig:"MAX_UPLOAD_SIZE" default:"5242880"`

	// Events and background work
	NATSURL              string        `envconfig:"NATS_URL"`
	AutoRematch          bool          `envconfig:"AUTO_REMATCH" default:"false"`
	RematchWorkers       int           `envconfig:"REMATCH_WORKERS" default:"4"`
	StaleProcessingAfter time.Duration `envconfig:"STALE_PROCESSING_AFTER" default:"10m"`
	ReaperInterval       time.Duration `envconfig:"REAPER_INTERVAL" default:"1m"`
	UploadRateLimit      int           `envconfig:"UPLOAD_RATE_LIMIT" default:"30"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.EmbeddingProvider {
	case "deepface", "mock":
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	switch c.MatchPolicy {
	case "multi", "single_best":
	default:
		return fmt.Errorf("unknown MATCH_POLICY %q", c.MatchPolicy)
	}

	switch c.ImageStore {
	case "local":
	case "minio":
		if c.MinIOEndpoint == "" {
			return errors.New("MINIO_ENDPOINT is required for the minio image store")
		}
	default:
		return fmt.Errorf("unknown IMAGE_STORE %q", c.ImageStore)
	}

	if c.MatchThreshold < -1 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be within [-1, 1], got %v", c.MatchThreshold)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension)
	}
	if c.EmbeddingTimeout <= 0 {
		return errors.New("EMBEDDING_TIMEOUT must be positive")
	}
	if c.RematchWorkers <= 0 {
		c.RematchWorkers = 1
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
