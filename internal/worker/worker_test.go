package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockRematcher struct {
	mock.Mock
}

func (m *MockRematcher) Rematch(ctx context.Context, photoID uuid.UUID) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, photoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}

type MockPhotoLister struct {
	mock.Mock
}

func (m *MockPhotoLister) ListIDsByStatus(ctx context.Context, status domain.PhotoStatus) ([]uuid.UUID, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func TestRematchWorker_RematchAll(t *testing.T) {
	ok1, ok2, busy, moved, broken := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	photos := new(MockPhotoLister)
	photos.On("ListIDsByStatus", mock.Anything, domain.StatusCompleted).
		Return([]uuid.UUID{ok1, ok2, busy, moved, broken}, nil)

	rematcher := new(MockRematcher)
	rematcher.On("Rematch", mock.Anything, ok1).Return(&domain.ProcessingOutcome{PhotoID: ok1}, nil)
	rematcher.On("Rematch", mock.Anything, ok2).Return(&domain.ProcessingOutcome{PhotoID: ok2}, nil)
	rematcher.On("Rematch", mock.Anything, busy).Return(nil, domain.ErrAlreadyProcessing)
	rematcher.On("Rematch", mock.Anything, moved).Return(nil, domain.ErrInvalidStateTransition.WithError(errors.New("photo is pending")))
	rematcher.On("Rematch", mock.Anything, broken).Return(nil, domain.ErrPersistenceFailure)

	w := NewRematchWorker(rematcher, photos, discardLogger(), 3)

	var ticks atomic.Int32
	summary, err := w.RematchAll(context.Background(), func(total int) {
		assert.Equal(t, 5, total)
		ticks.Add(1)
	})
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 5, Rematched: 2, Skipped: 2, Failed: 1}, summary)
	assert.Equal(t, int32(5), ticks.Load())
	rematcher.AssertNumberOfCalls(t, "Rematch", 5)
}

func TestRematchWorker_ListError(t *testing.T) {
	photos := new(MockPhotoLister)
	photos.On("ListIDsByStatus", mock.Anything, domain.StatusCompleted).Return(nil, errors.New("conn refused"))

	w := NewRematchWorker(new(MockRematcher), photos, discardLogger(), 2)
	_, err := w.RematchAll(context.Background(), nil)
	assert.Error(t, err)
}

type blockingRematcher struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	calls    int
}

func (b *blockingRematcher) Rematch(context.Context, uuid.UUID) (*domain.ProcessingOutcome, error) {
	b.mu.Lock()
	b.calls++
	b.inFlight++
	if b.inFlight > b.peak {
		b.peak = b.inFlight
	}
	b.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	return &domain.ProcessingOutcome{}, nil
}

func TestRematchWorker_BoundedConcurrency(t *testing.T) {
	ids := make([]uuid.UUID, 12)
	for i := range ids {
		ids[i] = uuid.New()
	}
	photos := new(MockPhotoLister)
	photos.On("ListIDsByStatus", mock.Anything, domain.StatusCompleted).Return(ids, nil)

	rematcher := &blockingRematcher{}
	w := NewRematchWorker(rematcher, photos, discardLogger(), 3)

	summary, err := w.RematchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Rematched)
	assert.Equal(t, 12, rematcher.calls)
	assert.LessOrEqual(t, rematcher.peak, 3)
}

func TestRematchWorker_TriggersCoalesce(t *testing.T) {
	photos := new(MockPhotoLister)
	photos.On("ListIDsByStatus", mock.Anything, domain.StatusCompleted).Return([]uuid.UUID{}, nil)

	w := NewRematchWorker(new(MockRematcher), photos, discardLogger(), 1)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.HandleProfileUpdated(context.Background(), domain.ProfileUpdatedEvent{UserID: uuid.New()}))
	}
	assert.Len(t, w.trigger, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(w.trigger) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	photos.AssertNumberOfCalls(t, "ListIDsByStatus", 1)
}

func TestRematchWorker_AsEventSink(t *testing.T) {
	w := NewRematchWorker(new(MockRematcher), new(MockPhotoLister), discardLogger(), 1)

	require.NoError(t, w.PublishPhotoProcessed(context.Background(), domain.PhotoProcessedEvent{PhotoID: uuid.New()}))
	assert.Empty(t, w.trigger, "photo events do not schedule runs")

	require.NoError(t, w.PublishProfileUpdated(context.Background(), domain.ProfileUpdatedEvent{UserID: uuid.New()}))
	assert.Len(t, w.trigger, 1)
}

type fakeRecoverer struct {
	calls     atomic.Int32
	olderThan time.Duration
	n         int
	err       error
}

func (f *fakeRecoverer) RecoverStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.calls.Add(1)
	f.olderThan = olderThan
	return f.n, f.err
}

func TestReaper_Sweep(t *testing.T) {
	rec := &fakeRecoverer{n: 2}
	r := NewReaper(rec, discardLogger(), time.Minute, 10*time.Minute)

	assert.Equal(t, 2, r.Sweep(context.Background()))
	assert.Equal(t, 10*time.Minute, rec.olderThan)

	rec.err = errors.New("db down")
	rec.n = 0
	assert.Equal(t, 0, r.Sweep(context.Background()))
}

func TestReaper_RunSweepsOnStartAndTick(t *testing.T) {
	rec := &fakeRecoverer{}
	r := NewReaper(rec, discardLogger(), 20*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rec.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
