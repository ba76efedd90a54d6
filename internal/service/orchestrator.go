package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetag/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facetag/internal/provider"
	"github.com/saturnino-fabrica-de-software/facetag/internal/similarity"
	"github.com/saturnino-fabrica-de-software/facetag/internal/storage"
)

// ReasonAbandoned is recorded on photos the reaper takes out of processing.
const ReasonAbandoned = "processing abandoned"

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeError     = "error"
)

type OrchestratorConfig struct {
	// EmbeddingTimeout bounds a single call to the embedding source.
	EmbeddingTimeout time.Duration
	// Dimension is the embedding length every face and profile must have.
	Dimension int

	// Failure writes run on a context detached from the caller so that a
	// cancelled request still takes its photo out of processing.
	FailureWriteTimeout  time.Duration
	FailureWriteAttempts int
	FailureWriteBackoff  time.Duration
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		EmbeddingTimeout:     30 * time.Second,
		Dimension:            128,
		FailureWriteTimeout:  5 * time.Second,
		FailureWriteAttempts: 3,
		FailureWriteBackoff:  200 * time.Millisecond,
	}
}

// Orchestrator drives group photos through detection, matching and
// persistence. It is the only writer of a photo's faces and status.
type Orchestrator struct {
	photos   PhotoStore
	profiles ProfileStore
	images   storage.ImageStore
	source   provider.EmbeddingSource
	matcher  *similarity.Matcher
	events   EventPublisher
	metrics  Metrics
	logger   *slog.Logger
	cfg      OrchestratorConfig
	now      func() time.Time
}

func NewOrchestrator(
	photos PhotoStore,
	profiles ProfileStore,
	images storage.ImageStore,
	source provider.EmbeddingSource,
	matcher *similarity.Matcher,
	logger *slog.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.FailureWriteAttempts < 1 {
		cfg.FailureWriteAttempts = 1
	}
	return &Orchestrator{
		photos:   photos,
		profiles: profiles,
		images:   images,
		source:   source,
		matcher:  matcher,
		events:   nopPublisher{},
		metrics:  nopMetrics{},
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (o *Orchestrator) WithEvents(events EventPublisher) *Orchestrator {
	o.events = events
	return o
}

func (o *Orchestrator) WithMetrics(m Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// ProcessGroupPhoto runs the first pass over a pending photo.
//
// Only the caller that moves the photo from pending to processing does any
// work. The others get ErrAlreadyProcessing (photo is mid-pass) or
// ErrInvalidStateTransition (photo already finished).
//
// Image and embedding source failures end the photo as failed and are
// reported through the outcome, not the error. A non-nil error means the
// pass could not be recorded.
func (o *Orchestrator) ProcessGroupPhoto(ctx context.Context, photoID uuid.UUID, imageRef string) (*domain.ProcessingOutcome, error) {
	photo, err := o.acquire(ctx, photoID, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	if imageRef == "" {
		imageRef = photo.ImageRef
	}
	return o.runPass(ctx, photo, imageRef, false)
}

// Rematch recomputes a finished photo against the current profile registry.
//
// A completed photo keeps its faces and only has its matches replaced. A
// failed photo has no faces, so it goes through full detection again from
// its stored image.
func (o *Orchestrator) Rematch(ctx context.Context, photoID uuid.UUID) (*domain.ProcessingOutcome, error) {
	photo, err := o.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, storeError(err)
	}

	switch photo.Status {
	case domain.StatusCompleted:
		return o.rematchCompleted(ctx, photo)
	case domain.StatusFailed:
		acquired, err := o.acquire(ctx, photoID, domain.StatusFailed)
		if err != nil {
			return nil, err
		}
		return o.runPass(ctx, acquired, acquired.ImageRef, true)
	case domain.StatusProcessing:
		return nil, domain.ErrAlreadyProcessing.WithError(fmt.Errorf("photo %s", photoID))
	}
	return nil, domain.ErrInvalidStateTransition.WithError(fmt.Errorf("photo %s is %s, rematch needs completed or failed", photoID, photo.Status))
}

// RecoverStale fails every photo that has been processing for longer than
// olderThan. It returns how many photos were recovered.
func (o *Orchestrator) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := o.photos.ListStaleProcessing(ctx, o.now().Add(-olderThan))
	if err != nil {
		return 0, domain.ErrPersistenceFailure.WithError(err)
	}

	recovered := 0
	for _, id := range ids {
		err := o.photos.MarkFailed(ctx, id, ReasonAbandoned)
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			// finished between the listing and now
			continue
		}
		if err != nil {
			return recovered, domain.ErrPersistenceFailure.WithError(err)
		}
		recovered++
		o.logger.Warn("stale photo marked failed", "photo_id", id, "older_than", olderThan)
	}
	return recovered, nil
}

// acquire wins the from -> processing transition and returns the photo as
// it is after the transition.
func (o *Orchestrator) acquire(ctx context.Context, photoID uuid.UUID, from domain.PhotoStatus) (*domain.Photo, error) {
	won, err := o.photos.CompareAndSetStatus(ctx, photoID, from, domain.StatusProcessing)
	if err != nil {
		return nil, domain.ErrPersistenceFailure.WithError(err)
	}
	if !won {
		return nil, o.rejectStart(ctx, photoID, from)
	}

	photo, err := o.photos.GetByID(ctx, photoID)
	if err != nil {
		// we own the photo now; it must not stay in processing
		o.markFailed(ctx, photoID, "could not load photo: "+err.Error())
		return nil, storeError(err)
	}
	return photo, nil
}

func (o *Orchestrator) rejectStart(ctx context.Context, photoID uuid.UUID, from domain.PhotoStatus) error {
	photo, err := o.photos.GetByID(ctx, photoID)
	if err != nil {
		return storeError(err)
	}
	if photo.Status == domain.StatusProcessing {
		return domain.ErrAlreadyProcessing.WithError(fmt.Errorf("photo %s", photoID))
	}
	return domain.ErrInvalidStateTransition.WithError(fmt.Errorf("photo %s is %s, expected %s", photoID, photo.Status, from))
}

// runPass is one full pass over a photo the caller already moved to
// processing.
func (o *Orchestrator) runPass(ctx context.Context, photo *domain.Photo, imageRef string, rematch bool) (*domain.ProcessingOutcome, error) {
	start := time.Now()
	o.metrics.PassStarted()
	log := o.logger.With("photo_id", photo.ID, "rematch", rematch)

	data, err := o.images.Get(ctx, imageRef)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return o.fail(ctx, photo, domain.ErrInvalidImage.WithError(err), rematch, start)
		}
		return o.abort(ctx, photo, domain.ErrPersistenceFailure.WithError(fmt.Errorf("load image: %w", err)), start)
	}

	if _, err := imaging.Validate(data, 0); err != nil {
		return o.fail(ctx, photo, err, rematch, start)
	}

	faces, err := o.detect(ctx, data)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			log.Error("embedding source returned wrong dimension", "error", err)
			return o.abort(ctx, photo, err, start)
		}
		log.Warn("embedding source failed", "error", err)
		return o.fail(ctx, photo, err, rematch, start)
	}

	if len(faces) == 0 {
		return o.complete(ctx, photo, []domain.Face{}, 0, rematch, start)
	}

	matched, total, err := o.match(ctx, faces)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			log.Error("profile embedding has wrong dimension", "error", err)
		}
		return o.abort(ctx, photo, err, start)
	}

	return o.complete(ctx, photo, matched, total, rematch, start)
}

func (o *Orchestrator) rematchCompleted(ctx context.Context, photo *domain.Photo) (*domain.ProcessingOutcome, error) {
	acquired, err := o.acquire(ctx, photo.ID, domain.StatusCompleted)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	o.metrics.PassStarted()

	matched, total, err := o.match(ctx, acquired.Faces)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			o.logger.Error("rematch hit dimension mismatch", "photo_id", acquired.ID, "error", err)
		}
		o.restoreCompleted(ctx, acquired.ID)
		o.metrics.PassFinished(outcomeError, len(acquired.Faces), 0, time.Since(start))
		return nil, err
	}

	if err := o.photos.WritePhotoResult(ctx, acquired.ID, matched, total, domain.StatusCompleted); err != nil {
		o.logger.Error("rematch write failed", "photo_id", acquired.ID, "error", err)
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			o.restoreCompleted(ctx, acquired.ID)
		}
		o.metrics.PassFinished(outcomeError, len(matched), 0, time.Since(start))
		return nil, domain.ErrPersistenceFailure.WithError(err)
	}

	acquired.Faces = matched
	acquired.TotalMatches = total
	acquired.Status = domain.StatusCompleted
	return o.finished(ctx, acquired, true, start), nil
}

// detect calls the embedding source under the configured time budget and
// turns its output into faces numbered in detection order.
func (o *Orchestrator) detect(ctx context.Context, image []byte) ([]domain.Face, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.EmbeddingTimeout)
	defer cancel()

	start := time.Now()
	detected, err := o.source.Detect(ctx, image)
	o.metrics.ObserveEmbedding(time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrEmbeddingSourceTimeout.WithError(err)
		}
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, domain.ErrEmbeddingSourceFailure.WithError(err)
	}

	faces := make([]domain.Face, 0, len(detected))
	for i, d := range detected {
		if len(d.Embedding) != o.cfg.Dimension {
			return nil, domain.ErrDimensionMismatch.WithError(fmt.Errorf("face %d has %d values, want %d", i, len(d.Embedding), o.cfg.Dimension))
		}
		faces = append(faces, domain.Face{
			FaceIndex:          i,
			BoundingBox:        domain.BoundingBox(d.BoundingBox),
			DetectorConfidence: d.Confidence,
			Embedding:          d.Embedding,
			Matches:            []domain.Match{},
		})
	}
	return faces, nil
}

// match loads one registry snapshot and scores every face against it. The
// snapshot lives only for this call.
func (o *Orchestrator) match(ctx context.Context, faces []domain.Face) ([]domain.Face, int, error) {
	snapshot, err := o.profiles.ListAllProfilesWithEmbeddings(ctx)
	if err != nil {
		return nil, 0, domain.ErrPersistenceFailure.WithError(fmt.Errorf("load profiles: %w", err))
	}

	start := time.Now()
	matched, total, err := o.matcher.MatchFaces(faces, snapshot, o.now())
	o.metrics.ObserveMatching(time.Since(start))
	if err != nil {
		return nil, 0, err
	}
	return matched, total, nil
}

func (o *Orchestrator) complete(ctx context.Context, photo *domain.Photo, faces []domain.Face, total int, rematch bool, start time.Time) (*domain.ProcessingOutcome, error) {
	if err := o.photos.WritePhotoResult(ctx, photo.ID, faces, total, domain.StatusCompleted); err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			o.logger.Warn("photo left processing before its result was written", "photo_id", photo.ID)
			o.metrics.PassFinished(outcomeError, len(faces), 0, time.Since(start))
			return nil, err
		}
		o.logger.Error("write photo result failed", "photo_id", photo.ID, "error", err)
		return o.abort(ctx, photo, domain.ErrPersistenceFailure.WithError(err), start)
	}

	photo.Faces = faces
	photo.TotalMatches = total
	photo.Status = domain.StatusCompleted
	photo.ErrorReason = ""
	return o.finished(ctx, photo, rematch, start), nil
}

func (o *Orchestrator) finished(ctx context.Context, photo *domain.Photo, rematch bool, start time.Time) *domain.ProcessingOutcome {
	o.metrics.PassFinished(outcomeCompleted, len(photo.Faces), photo.TotalMatches, time.Since(start))
	o.logger.Info("photo processed",
		"photo_id", photo.ID,
		"faces", len(photo.Faces),
		"total_matches", photo.TotalMatches,
		"rematch", rematch,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	o.publish(ctx, photo, rematch)

	return &domain.ProcessingOutcome{
		PhotoID:      photo.ID,
		Status:       domain.StatusCompleted,
		Faces:        domain.FaceResults(photo.Faces),
		TotalMatches: photo.TotalMatches,
	}
}

// fail ends the pass as failed. The cause is kept as the error reason.
func (o *Orchestrator) fail(ctx context.Context, photo *domain.Photo, cause error, rematch bool, start time.Time) (*domain.ProcessingOutcome, error) {
	reason := cause.Error()
	if err := o.markFailed(ctx, photo.ID, reason); err != nil {
		o.metrics.PassFinished(outcomeError, 0, 0, time.Since(start))
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			return nil, err
		}
		return nil, domain.ErrPersistenceFailure.WithError(err)
	}

	o.metrics.PassFinished(outcomeFailed, 0, 0, time.Since(start))
	photo.Status = domain.StatusFailed
	photo.Faces = []domain.Face{}
	photo.TotalMatches = 0
	photo.ErrorReason = reason
	o.publish(ctx, photo, rematch)

	return &domain.ProcessingOutcome{
		PhotoID:     photo.ID,
		Status:      domain.StatusFailed,
		Faces:       []domain.FaceResult{},
		ErrorCode:   domain.KindOf(cause).Code,
		ErrorReason: reason,
	}, nil
}

// abort fails the photo and hands cause back to the caller.
func (o *Orchestrator) abort(ctx context.Context, photo *domain.Photo, cause error, start time.Time) (*domain.ProcessingOutcome, error) {
	o.markFailed(ctx, photo.ID, cause.Error())
	o.metrics.PassFinished(outcomeError, 0, 0, time.Since(start))
	return nil, cause
}

// markFailed moves the photo to failed on a context detached from ctx,
// retrying a few times. The stale reaper covers the case where every
// attempt fails.
func (o *Orchestrator) markFailed(ctx context.Context, photoID uuid.UUID, reason string) error {
	err := o.detached(ctx, func(ctx context.Context) error {
		return o.photos.MarkFailed(ctx, photoID, reason)
	})
	if err != nil && !errors.Is(err, domain.ErrInvalidStateTransition) {
		o.logger.Error("could not mark photo failed", "photo_id", photoID, "reason", reason, "error", err)
	}
	return err
}

// restoreCompleted gives a completed photo back its status after a rematch
// that wrote nothing. Its faces and matches were never touched.
func (o *Orchestrator) restoreCompleted(ctx context.Context, photoID uuid.UUID) {
	err := o.detached(ctx, func(ctx context.Context) error {
		ok, err := o.photos.CompareAndSetStatus(ctx, photoID, domain.StatusProcessing, domain.StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidStateTransition
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrInvalidStateTransition) {
		o.logger.Error("could not restore completed photo", "photo_id", photoID, "error", err)
	}
}

func (o *Orchestrator) detached(ctx context.Context, op func(ctx context.Context) error) error {
	base := context.WithoutCancel(ctx)

	var err error
	for attempt := 0; attempt < o.cfg.FailureWriteAttempts; attempt++ {
		if attempt > 0 && o.cfg.FailureWriteBackoff > 0 {
			time.Sleep(o.cfg.FailureWriteBackoff * time.Duration(attempt))
		}

		writeCtx, cancel := context.WithTimeout(base, o.cfg.FailureWriteTimeout)
		err = op(writeCtx)
		cancel()

		if err == nil || errors.Is(err, domain.ErrInvalidStateTransition) {
			return err
		}
	}
	return err
}

func (o *Orchestrator) publish(ctx context.Context, photo *domain.Photo, rematch bool) {
	event := domain.PhotoProcessedEvent{
		PhotoID:        photo.ID,
		UploaderID:     photo.UploaderID,
		Status:         photo.Status,
		NumFaces:       len(photo.Faces),
		TotalMatches:   photo.TotalMatches,
		MatchedUserIDs: photo.MatchedUserIDs(),
		ErrorReason:    photo.ErrorReason,
		Rematch:        rematch,
		OccurredAt:     o.now(),
	}
	if err := o.events.PublishPhotoProcessed(context.WithoutCancel(ctx), event); err != nil {
		o.logger.Warn("publish photo event failed", "photo_id", photo.ID, "error", err)
	}
}

// storeError keeps not-found kinds and reports anything else as a
// persistence failure.
func storeError(err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return domain.ErrPersistenceFailure.WithError(err)
}
