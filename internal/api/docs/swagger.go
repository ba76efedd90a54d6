package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

type RegisterRequest struct {
	Username string `json:"username" example:"maria"`
	Email    string `json:"email" example:"maria@example.com"`
	Password string `json:"password" example:"s3cret-pass"`
}

type LoginRequest struct {
	Username string `json:"username" example:"maria"`
	Password string `json:"password" example:"s3cret-pass"`
}

type UserData struct {
	ID               string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Username         string `json:"username" example:"maria"`
	Email            string `json:"email" example:"maria@example.com"`
	EmbeddingVersion int64  `json:"embedding_version" example:"2"`
	CreatedAt        string `json:"created_at" example:"2026-01-01T00:00:00Z"`
}

type SessionResponse struct {
	Token     string   `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	ExpiresAt string   `json:"expires_at" example:"2026-01-02T00:00:00Z"`
	User      UserData `json:"user"`
}

type ProfileResponse struct {
	UserData
	HasProfile bool `json:"has_profile" example:"true"`
}

type ProfileUploadResponse struct {
	FaceDetected       bool    `json:"face_detected" example:"true"`
	DetectorConfidence float64 `json:"detector_confidence" example:"0.99"`
	EmbeddingVersion   int64   `json:"embedding_version" example:"3"`
}

type BoundingBox struct {
	X      float64 `json:"x" example:"120"`
	Y      float64 `json:"y" example:"48"`
	Width  float64 `json:"width" example:"96"`
	Height float64 `json:"height" example:"96"`
}

type MatchData struct {
	UserID                         string  `json:"user_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	SimilarityScore                float64 `json:"similarity_score" example:"0.87"`
	MatchedAgainstEmbeddingVersion int64   `json:"matched_against_embedding_version" example:"2"`
	MatchedAt                      string  `json:"matched_at" example:"2026-01-01T00:00:00Z"`
}

type FaceData struct {
	FaceIndex          int         `json:"face_index" example:"0"`
	BoundingBox        BoundingBox `json:"bbox"`
	DetectorConfidence float64     `json:"detector_confidence" example:"0.98"`
	Matches            []MatchData `json:"matches"`
}

type ProcessingResponse struct {
	PhotoID      string     `json:"photo_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Status       string     `json:"status" example:"completed"`
	TotalFaces   int        `json:"total_faces" example:"4"`
	TotalMatches int        `json:"total_matches" example:"2"`
	Faces        []FaceData `json:"faces"`
	ErrorCode    string     `json:"error_code,omitempty" example:""`
	ErrorReason  string     `json:"error_reason,omitempty" example:""`
}

type FaceScore struct {
	FaceIndex       int     `json:"face_index" example:"2"`
	SimilarityScore float64 `json:"similarity_score" example:"0.87"`
}

type MyPhoto struct {
	PhotoID    string      `json:"photo_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Filename   string      `json:"filename" example:"party.jpg"`
	UploaderID string      `json:"uploader_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UploadedAt string      `json:"uploaded_at" example:"2026-01-01T00:00:00Z"`
	NumFaces   int         `json:"num_faces" example:"4"`
	Matches    []FaceScore `json:"matches"`
}

type MyPhotosResponse struct {
	Photos []MyPhoto `json:"photos"`
	Limit  int       `json:"limit" example:"20"`
	Offset int       `json:"offset" example:"0"`
}

type UploadedPhoto struct {
	PhotoID      string `json:"photo_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Filename     string `json:"filename" example:"party.jpg"`
	Status       string `json:"status" example:"completed"`
	NumFaces     int    `json:"num_faces" example:"4"`
	TotalMatches int    `json:"total_matches" example:"2"`
	UploadedAt   string `json:"uploaded_at" example:"2026-01-01T00:00:00Z"`
}

type UploadedPhotosResponse struct {
	Photos []UploadedPhoto `json:"photos"`
	Limit  int             `json:"limit" example:"20"`
	Offset int             `json:"offset" example:"0"`
}

type PhotoDetailResponse struct {
	PhotoID      string     `json:"photo_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	UploaderID   string     `json:"uploader_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Filename     string     `json:"filename" example:"party.jpg"`
	Status       string     `json:"status" example:"completed"`
	Faces        []FaceData `json:"faces"`
	TotalMatches int        `json:"total_matches" example:"2"`
	ErrorReason  string     `json:"error_reason,omitempty" example:""`
	UploadedAt   string     `json:"uploaded_at" example:"2026-01-01T00:00:00Z"`
}

type StatsResponse struct {
	PhotosUploaded  int64 `json:"photos_uploaded" example:"12"`
	PhotosAppearsIn int64 `json:"photos_appears_in" example:"30"`
	FaceAppearances int64 `json:"face_appearances" example:"34"`
}

var (
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing token"}, "401", "Unauthorized")
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errStore        = response.New(ErrorResponse{Code: "PERSISTENCE_FAILURE", Message: "Storage is unavailable"}, "503", "Service Unavailable")
	bearer          = endpoint.WithSecurity([]map[string][]string{{"BearerAuth": {}}})
)

func photoIDParam() *parameter.Parameter {
	return parameter.StrParam("id", parameter.Path, parameter.WithDescription("Photo UUID"))
}

func pagingParams() endpoint.EndPointOption {
	return endpoint.WithParams(
		parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Page size (default: 20, max: 100)")),
		parameter.IntParam("offset", parameter.Query, parameter.WithDescription("Rows to skip (default: 0)")),
	)
}

// NewSwagger creates and configures the Swagger documentation
func NewSwagger(host string) *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "FaceTag API",
		Version:     "v1.0.0",
		Description: "Tags people in group photos by matching every detected face against the registered profile embeddings",
		Host:        host,
		Path:        "/api",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /api/auth/register
		endpoint.New(
			endpoint.POST,
			"/auth/register",
			endpoint.WithTags("Auth"),
			endpoint.WithSummary("Create an account"),
			endpoint.WithDescription("Username 3-50 characters, valid email, password 6-128 characters. Returns a session token."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(RegisterRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "201", "Account created"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "USERNAME_TAKEN", Message: "Username is already taken"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
				errInternal,
			}),
		),

		// POST /api/auth/login
		endpoint.New(
			endpoint.POST,
			"/auth/login",
			endpoint.WithTags("Auth"),
			endpoint.WithSummary("Log in"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(LoginRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Logged in"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "INVALID_CREDENTIALS", Message: "Invalid username or password"}, "401", "Unauthorized"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
			}),
		),

		// GET /api/auth/profile
		endpoint.New(
			endpoint.GET,
			"/auth/profile",
			endpoint.WithTags("Auth"),
			endpoint.WithSummary("Current user"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ProfileResponse{}, "200", "Authenticated user"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized}),
			bearer,
		),

		// POST /api/upload/profile
		endpoint.New(
			endpoint.POST,
			"/upload/profile",
			endpoint.WithTags("Upload"),
			endpoint.WithSummary("Upload the profile photo"),
			endpoint.WithDescription("Multipart field \"file\" (jpg, png or webp, up to 5 MiB). The photo must contain exactly one face; its embedding replaces the previous one."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ProfileUploadResponse{}, "200", "Profile embedding replaced"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "IMAGE_TOO_LARGE", Message: "Image exceeds the upload limit"}, "413", "Payload Too Large"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "MULTIPLE_FACES", Message: "Multiple faces detected"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "EMBEDDING_SOURCE_FAILURE", Message: "Face detector is unavailable"}, "502", "Bad Gateway"),
				errStore,
			}),
			bearer,
		),

		// POST /api/upload/group
		endpoint.New(
			endpoint.POST,
			"/upload/group",
			endpoint.WithTags("Upload"),
			endpoint.WithSummary("Upload a group photo"),
			endpoint.WithDescription("Multipart field \"file\". Every face is detected and matched against all profiles before the response is sent. A pass that failed still creates the photo with status failed."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ProcessingResponse{}, "201", "Photo created and processed"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "IMAGE_TOO_LARGE", Message: "Image exceeds the upload limit"}, "413", "Payload Too Large"),
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Image could not be decoded"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"}, "429", "Too Many Requests"),
				errStore,
			}),
			bearer,
		),

		// GET /api/photos/mine
		endpoint.New(
			endpoint.GET,
			"/photos/mine",
			endpoint.WithTags("Photos"),
			endpoint.WithSummary("Photos I appear in"),
			endpoint.WithDescription("Completed photos the caller was matched in, most recent upload first. Only the caller's own scores are returned."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			pagingParams(),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(MyPhotosResponse{}, "200", "Photos"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errStore}),
			bearer,
		),

		// GET /api/photos/uploaded
		endpoint.New(
			endpoint.GET,
			"/photos/uploaded",
			endpoint.WithTags("Photos"),
			endpoint.WithSummary("Photos I uploaded"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			pagingParams(),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(UploadedPhotosResponse{}, "200", "Photos"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errStore}),
			bearer,
		),

		// GET /api/photos/stats
		endpoint.New(
			endpoint.GET,
			"/photos/stats",
			endpoint.WithTags("Photos"),
			endpoint.WithSummary("Upload and appearance counters"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StatsResponse{}, "200", "Counters"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errStore}),
			bearer,
		),

		// GET /api/photos/{id}
		endpoint.New(
			endpoint.GET,
			"/photos/{id}",
			endpoint.WithTags("Photos"),
			endpoint.WithSummary("Photo detail"),
			endpoint.WithDescription("Every face with every user's matches. Only the uploader and matched users may read it."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(photoIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(PhotoDetailResponse{}, "200", "Photo"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "FORBIDDEN", Message: "Access denied"}, "403", "Forbidden"),
				response.New(ErrorResponse{Code: "PHOTO_NOT_FOUND", Message: "Photo not found"}, "404", "Not Found"),
			}),
			bearer,
		),

		// GET /api/photos/{id}/image
		endpoint.New(
			endpoint.GET,
			"/photos/{id}/image",
			endpoint.WithTags("Photos"),
			endpoint.WithSummary("Stored image bytes"),
			endpoint.WithProduce([]mime.MIME{mime.MIME("image/jpeg"), mime.MIME("image/png"), mime.MIME("image/webp")}),
			endpoint.WithParams(photoIDParam()),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "FORBIDDEN", Message: "Access denied"}, "403", "Forbidden"),
				response.New(ErrorResponse{Code: "PHOTO_NOT_FOUND", Message: "Photo not found"}, "404", "Not Found"),
			}),
			bearer,
		),

		// POST /api/photos/{id}/rematch
		endpoint.New(
			endpoint.POST,
			"/photos/{id}/rematch",
			endpoint.WithTags("Photos"),
			endpoint.WithSummary("Match the photo again"),
			endpoint.WithDescription("Uploader only. A completed photo keeps its faces and gets its matches replaced; a failed photo is detected again."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(photoIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ProcessingResponse{}, "200", "Rematched"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "FORBIDDEN", Message: "Access denied"}, "403", "Forbidden"),
				response.New(ErrorResponse{Code: "ALREADY_PROCESSING", Message: "Photo is being processed"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "INVALID_STATE_TRANSITION", Message: "Photo cannot be rematched in its current state"}, "409", "Conflict"),
				errStore,
			}),
			bearer,
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
