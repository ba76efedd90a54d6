package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetag/internal/provider"
	"github.com/saturnino-fabrica-de-software/facetag/internal/storage"
)

// memStore is an in-memory PhotoStore and ProfileStore with the same
// compare-and-set semantics as the real backends.
type memStore struct {
	mu       sync.Mutex
	photos   map[uuid.UUID]*domain.Photo
	profiles map[uuid.UUID]domain.ProfileEmbedding
	refs     map[uuid.UUID]string

	writeErr        error
	markFailedErr   error
	listProfilesErr error

	profileLoads int
}

func newMemStore() *memStore {
	return &memStore{
		photos:   make(map[uuid.UUID]*domain.Photo),
		profiles: make(map[uuid.UUID]domain.ProfileEmbedding),
		refs:     make(map[uuid.UUID]string),
	}
}

func clonePhoto(p *domain.Photo) *domain.Photo {
	cp := *p
	cp.Faces = make([]domain.Face, len(p.Faces))
	for i, f := range p.Faces {
		f.Matches = append([]domain.Match{}, f.Matches...)
		f.Embedding = append([]float64{}, f.Embedding...)
		cp.Faces[i] = f
	}
	return &cp
}

func (s *memStore) CreatePhoto(_ context.Context, photo *domain.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}
	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = time.Now().UTC()
	}
	photo.Status = domain.StatusPending
	photo.Faces = []domain.Face{}
	s.photos[photo.ID] = clonePhoto(photo)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[id]
	if !ok {
		return nil, domain.ErrPhotoNotFound
	}
	return clonePhoto(p), nil
}

func (s *memStore) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next domain.PhotoStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[id]
	if !ok || p.Status != expected {
		return false, nil
	}
	p.Status = next
	if next == domain.StatusProcessing {
		now := time.Now().UTC()
		p.ProcessingStartedAt = &now
	} else {
		p.ProcessingStartedAt = nil
	}
	return true, nil
}

func (s *memStore) WritePhotoResult(_ context.Context, id uuid.UUID, faces []domain.Face, totalMatches int, status domain.PhotoStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	p, ok := s.photos[id]
	if !ok || p.Status != domain.StatusProcessing {
		return domain.ErrInvalidStateTransition
	}
	p.Faces = clonePhoto(&domain.Photo{Faces: faces}).Faces
	p.TotalMatches = totalMatches
	p.Status = status
	p.ErrorReason = ""
	p.ProcessingStartedAt = nil
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.markFailedErr != nil {
		return s.markFailedErr
	}
	p, ok := s.photos[id]
	if !ok || p.Status != domain.StatusProcessing {
		return domain.ErrInvalidStateTransition
	}
	p.Status = domain.StatusFailed
	p.Faces = []domain.Face{}
	p.TotalMatches = 0
	p.ErrorReason = reason
	p.ProcessingStartedAt = nil
	return nil
}

func (s *memStore) sorted(keep func(*domain.Photo) bool, limit, offset int) []domain.Photo {
	var out []domain.Photo
	for _, p := range s.photos {
		if keep(p) {
			out = append(out, *clonePhoto(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if offset >= len(out) {
		return []domain.Photo{}
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memStore) ListPhotosMatchingUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sorted(func(p *domain.Photo) bool {
		if p.Status != domain.StatusCompleted {
			return false
		}
		for _, id := range p.MatchedUserIDs() {
			if id == userID {
				return true
			}
		}
		return false
	}, limit, offset), nil
}

func (s *memStore) ListUploadedBy(_ context.Context, uploaderID uuid.UUID, limit, offset int) ([]domain.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sorted(func(p *domain.Photo) bool { return p.UploaderID == uploaderID }, limit, offset), nil
}

func (s *memStore) Stats(_ context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.UserStats
	for _, p := range s.photos {
		if p.UploaderID == userID {
			stats.PhotosUploaded++
		}
		if p.Status != domain.StatusCompleted {
			continue
		}
		appears := false
		for _, f := range p.Faces {
			for _, m := range f.Matches {
				if m.UserID == userID {
					stats.FaceAppearances++
					appears = true
				}
			}
		}
		if appears && p.UploaderID != userID {
			stats.PhotosAppearsIn++
		}
	}
	return &stats, nil
}

func (s *memStore) ListIDsByStatus(_ context.Context, status domain.PhotoStatus) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, p := range s.photos {
		if p.Status == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) ListStaleProcessing(_ context.Context, before time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, p := range s.photos {
		if p.Status == domain.StatusProcessing && p.ProcessingStartedAt != nil && p.ProcessingStartedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) GetProfileEmbedding(_ context.Context, userID uuid.UUID) (*domain.ProfileEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) ListAllProfilesWithEmbeddings(_ context.Context) ([]domain.ProfileEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profileLoads++
	if s.listProfilesErr != nil {
		return nil, s.listProfilesErr
	}
	out := make([]domain.ProfileEmbedding, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (s *memStore) ReplaceEmbedding(_ context.Context, userID uuid.UUID, embedding []float64, photoRef string) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.refs[userID]
	s.refs[userID] = photoRef
	p := s.profiles[userID]
	p.UserID = userID
	p.Embedding = append([]float64{}, embedding...)
	p.Version++
	s.profiles[userID] = p
	return p.Version, previous, nil
}

func (s *memStore) addProfile(userID uuid.UUID, embedding []float64) {
	_, _, _ = s.ReplaceEmbedding(context.Background(), userID, embedding, "")
}

func (s *memStore) set(fn func(s *memStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// fakeSource is an EmbeddingSource driven by a function.
type fakeSource struct {
	detect func(ctx context.Context, image []byte) ([]provider.DetectedFace, error)
	dim    int
}

func (f *fakeSource) Detect(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	return f.detect(ctx, image)
}
func (f *fakeSource) Dimension() int { return f.dim }
func (f *fakeSource) Close() error   { return nil }

func facesWith(embeddings ...[]float64) func(context.Context, []byte) ([]provider.DetectedFace, error) {
	return func(context.Context, []byte) ([]provider.DetectedFace, error) {
		out := make([]provider.DetectedFace, 0, len(embeddings))
		for i, e := range embeddings {
			out = append(out, provider.DetectedFace{
				BoundingBox: provider.BoundingBox{X: float64(i * 10), Y: 5, Width: 8, Height: 8},
				Confidence:  0.95,
				Embedding:   e,
			})
		}
		return out, nil
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	photos   []domain.PhotoProcessedEvent
	profiles []domain.ProfileUpdatedEvent
}

func (r *recordingPublisher) PublishPhotoProcessed(_ context.Context, e domain.PhotoProcessedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.photos = append(r.photos, e)
	return nil
}

func (r *recordingPublisher) PublishProfileUpdated(_ context.Context, e domain.ProfileUpdatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = append(r.profiles, e)
	return nil
}

const testDim = 8

func unitVec(axis int) []float64 {
	v := make([]float64, testDim)
	v[axis] = 1
	return v
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPNG(t testing.TB, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testImageStore(t testing.TB) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func testOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		EmbeddingTimeout:     time.Second,
		Dimension:            testDim,
		FailureWriteTimeout:  time.Second,
		FailureWriteAttempts: 2,
	}
}
