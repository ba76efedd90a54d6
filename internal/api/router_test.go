package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetag/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facetag/internal/auth"
	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetag/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facetag/internal/service"
	"github.com/saturnino-fabrica-de-software/facetag/internal/ws"
)

type stubAccounts struct{ user *domain.User }

func (s stubAccounts) Register(context.Context, string, string, string) (*service.Session, error) {
	return &service.Session{Token: "t", User: s.user}, nil
}

func (s stubAccounts) Login(context.Context, string, string) (*service.Session, error) {
	return &service.Session{Token: "t", User: s.user}, nil
}

func (s stubAccounts) Me(context.Context, uuid.UUID) (*domain.User, error) { return s.user, nil }

type stubPhotos struct{}

func (stubPhotos) UploadProfile(context.Context, uuid.UUID, string, []byte) (*domain.ProfileUploadResult, error) {
	return &domain.ProfileUploadResult{FaceDetected: true, EmbeddingVersion: 1}, nil
}

func (stubPhotos) UploadGroup(_ context.Context, _ uuid.UUID, _ string, _ []byte) (*domain.ProcessingOutcome, error) {
	return &domain.ProcessingOutcome{PhotoID: uuid.New(), Status: domain.StatusCompleted}, nil
}

func (stubPhotos) ListMine(context.Context, uuid.UUID, int, int) ([]domain.MyPhoto, error) {
	return []domain.MyPhoto{}, nil
}

func (stubPhotos) ListUploaded(context.Context, uuid.UUID, int, int) ([]domain.Photo, error) {
	return nil, nil
}

func (stubPhotos) GetDetail(context.Context, uuid.UUID, uuid.UUID) (*domain.Photo, error) {
	return nil, domain.ErrPhotoNotFound
}

func (stubPhotos) GetImage(context.Context, uuid.UUID, uuid.UUID) ([]byte, error) {
	return nil, domain.ErrPhotoNotFound
}

func (stubPhotos) Stats(context.Context, uuid.UUID) (*domain.UserStats, error) {
	return &domain.UserStats{}, nil
}

func (stubPhotos) Rematch(context.Context, uuid.UUID, uuid.UUID) (*domain.ProcessingOutcome, error) {
	return nil, domain.ErrForbidden
}

func newTestRouter(t *testing.T, uploadLimit int) (*Router, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewJWTService("router-test-secret", "facetag", time.Hour)

	user := &domain.User{ID: uuid.New(), Username: "ana"}
	token, _, err := tokens.GenerateToken(user.ID, user.Username)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	photos := stubPhotos{}
	router := NewRouter(logger, &Dependencies{
		Accounts:        stubAccounts{user: user},
		Profiles:        photos,
		Groups:          photos,
		Photos:          photos,
		Tokens:          tokens,
		Hub:             ws.NewHub(logger),
		HTTPMetrics:     metrics.NewHTTP(reg),
		Gatherer:        reg,
		MaxUploadSize:   1 << 20,
		UploadRateLimit: uploadLimit,
	})
	router.Setup()
	t.Cleanup(func() { _ = router.Shutdown() })

	return router, token
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func groupUpload(t *testing.T, token string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "group.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("png bytes"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/group", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return authed(req, token)
}

func TestRouter_Routes(t *testing.T) {
	router, token := newTestRouter(t, 10)
	photoPath := "/api/photos/" + uuid.NewString()

	tests := []struct {
		name           string
		req            *http.Request
		expectedStatus int
	}{
		{"health", httptest.NewRequest(http.MethodGet, "/health", nil), http.StatusOK},
		{"ready without checks", httptest.NewRequest(http.MethodGet, "/ready", nil), http.StatusOK},
		{"unknown route", httptest.NewRequest(http.MethodGet, "/nonexistent", nil), http.StatusNotFound},
		{"login is public", httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ana","password":"x"}`)), http.StatusOK},
		{"profile needs token", httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil), http.StatusUnauthorized},
		{"profile", authed(httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil), token), http.StatusOK},
		{"mine needs token", httptest.NewRequest(http.MethodGet, "/api/photos/mine", nil), http.StatusUnauthorized},
		{"mine", authed(httptest.NewRequest(http.MethodGet, "/api/photos/mine", nil), token), http.StatusOK},
		{"stats", authed(httptest.NewRequest(http.MethodGet, "/api/photos/stats", nil), token), http.StatusOK},
		{"uploaded", authed(httptest.NewRequest(http.MethodGet, "/api/photos/uploaded", nil), token), http.StatusOK},
		{"detail", authed(httptest.NewRequest(http.MethodGet, photoPath, nil), token), http.StatusNotFound},
		{"rematch", authed(httptest.NewRequest(http.MethodPost, photoPath+"/rematch", nil), token), http.StatusForbidden},
		{"group upload", groupUpload(t, token), http.StatusCreated},
		{"ws without upgrade", authed(httptest.NewRequest(http.MethodGet, "/api/ws", nil), token), http.StatusUpgradeRequired},
		{"ws token in query", httptest.NewRequest(http.MethodGet, "/api/ws?token="+token, nil), http.StatusUpgradeRequired},
		{"ws needs token", httptest.NewRequest(http.MethodGet, "/api/ws", nil), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.req.Method == http.MethodPost && tt.req.Header.Get("Content-Type") == "" {
				tt.req.Header.Set("Content-Type", "application/json")
			}
			resp, err := router.App().Test(tt.req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestRouter_GroupUploadRateLimit(t *testing.T) {
	router, token := newTestRouter(t, 1)

	resp, err := router.App().Test(groupUpload(t, token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = router.App().Test(groupUpload(t, token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// other routes are not limited
	resp, err = router.App().Test(authed(httptest.NewRequest(http.MethodGet, "/api/photos/mine", nil), token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Metrics(t *testing.T) {
	router, token := newTestRouter(t, 10)

	_, err := router.App().Test(authed(httptest.NewRequest(http.MethodGet, "/api/photos/mine", nil), token), -1)
	require.NoError(t, err)
	_, err = router.App().Test(httptest.NewRequest(http.MethodGet, "/api/photos/mine", nil), -1)
	require.NoError(t, err)

	resp, err := router.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `facetag_http_requests_total{method="GET",path="/api/photos/mine",status="200"} 1`)
	// rejected before the route handler ran, so only the status is checked
	assert.Contains(t, string(body), `status="401"`)
}

func TestRouter_SharedUserLocal(t *testing.T) {
	assert.Equal(t, middleware.LocalUserID, ws.LocalUserID)
}
