package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/facetag/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/facetag/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facetag/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facetag/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facetag/internal/ws"
)

// multipart framing on top of the image itself
const bodyOverhead = 64 * 1024

type Dependencies struct {
	Accounts handler.AccountService
	Profiles handler.ProfileUploader
	Groups   handler.GroupUploader
	Photos   handler.PhotoQueries
	Tokens   middleware.TokenValidator

	// Hub is optional; without it /api/ws is not served
	Hub *ws.Hub

	// ReadyChecks are pinged by /ready
	ReadyChecks map[string]handler.Pinger

	// HTTPMetrics and Gatherer are optional; /metrics is served when Gatherer is set
	HTTPMetrics *metrics.HTTP
	Gatherer    prometheus.Gatherer

	MaxUploadSize   int
	UploadRateLimit int
	PublicHost      string
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "FaceTag API",
		BodyLimit:    deps.MaxUploadSize + bodyOverhead,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	if r.deps.HTTPMetrics != nil {
		r.app.Use(r.deps.HTTPMetrics.Middleware())
	}
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	host := r.deps.PublicHost
	if host == "" {
		host = "localhost:3000"
	}
	sw := docs.NewSwagger(host)
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	healthHandler := handler.NewHealthHandler(r.deps.ReadyChecks, r.logger)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps.Gatherer != nil {
		r.app.Get("/metrics", metrics.Handler(r.deps.Gatherer))
	}

	api := r.app.Group("/api")

	// Public auth routes
	authHandler := handler.NewAuthHandler(r.deps.Accounts, r.logger)
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// Everything below needs a valid token
	protected := api.Group("", middleware.Auth(r.deps.Tokens, r.logger))
	protected.Get("/auth/profile", authHandler.Profile)

	// Uploads (group uploads are rate limited per user)
	r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Max: r.deps.UploadRateLimit,
	})
	uploadHandler := handler.NewUploadHandler(r.deps.Profiles, r.deps.Groups, int64(r.deps.MaxUploadSize), r.logger)
	protected.Post("/upload/profile", uploadHandler.Profile)
	protected.Post("/upload/group", r.rateLimiter.Handler(), uploadHandler.Group)

	// Photos
	photoHandler := handler.NewPhotoHandler(r.deps.Photos, r.logger)
	protected.Get("/photos/mine", photoHandler.Mine)
	protected.Get("/photos/uploaded", photoHandler.Uploaded)
	protected.Get("/photos/stats", photoHandler.Stats)
	protected.Get("/photos/:id", photoHandler.Detail)
	protected.Get("/photos/:id/image", photoHandler.Image)
	protected.Post("/photos/:id/rematch", photoHandler.Rematch)

	// WebSocket endpoint
	if r.deps.Hub != nil {
		protected.Get("/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
