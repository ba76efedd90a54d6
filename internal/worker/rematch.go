package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

type Rematcher interface {
	Rematch(ctx context.Context, photoID uuid.UUID) (*domain.ProcessingOutcome, error)
}

type PhotoLister interface {
	ListIDsByStatus(ctx context.Context, status domain.PhotoStatus) ([]uuid.UUID, error)
}

// Summary counts what a RematchAll run did with each photo.
type Summary struct {
	Total     int
	Rematched int
	// Skipped photos were mid-pass or changed state under us.
	Skipped int
	Failed  int
}

// RematchWorker re-runs matching over completed photos after the profile
// registry changes. Profile events arriving during a run coalesce into a
// single follow-up run.
type RematchWorker struct {
	rematcher Rematcher
	photos    PhotoLister
	logger    *slog.Logger
	workers   int
	trigger   chan struct{}
}

func NewRematchWorker(rematcher Rematcher, photos PhotoLister, logger *slog.Logger, workers int) *RematchWorker {
	if workers < 1 {
		workers = 1
	}
	return &RematchWorker{
		rematcher: rematcher,
		photos:    photos,
		logger:    logger,
		workers:   workers,
		trigger:   make(chan struct{}, 1),
	}
}

// HandleProfileUpdated schedules a run. It never blocks.
func (w *RematchWorker) HandleProfileUpdated(_ context.Context, event domain.ProfileUpdatedEvent) error {
	select {
	case w.trigger <- struct{}{}:
		w.logger.Debug("rematch scheduled", "user_id", event.UserID, "embedding_version", event.EmbeddingVersion)
	default:
	}
	return nil
}

// PublishProfileUpdated lets the worker sit in an in-process event
// fan-out when no NATS server is configured.
func (w *RematchWorker) PublishProfileUpdated(ctx context.Context, event domain.ProfileUpdatedEvent) error {
	return w.HandleProfileUpdated(ctx, event)
}

func (w *RematchWorker) PublishPhotoProcessed(context.Context, domain.PhotoProcessedEvent) error {
	return nil
}

func (w *RematchWorker) Run(ctx context.Context) {
	w.logger.Info("rematch worker started", "workers", w.workers)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rematch worker stopped")
			return
		case <-w.trigger:
			start := time.Now()
			summary, err := w.RematchAll(ctx, nil)
			if err != nil {
				w.logger.Error("rematch run failed", "error", err)
				continue
			}
			w.logger.Info("rematch run finished",
				"total", summary.Total,
				"rematched", summary.Rematched,
				"skipped", summary.Skipped,
				"failed", summary.Failed,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}
}

// RematchAll rematches every completed photo with at most w.workers passes
// in flight. progress, when set, is called once per photo with the number of
// photos in the run.
func (w *RematchWorker) RematchAll(ctx context.Context, progress func(total int)) (Summary, error) {
	ids, err := w.photos.ListIDsByStatus(ctx, domain.StatusCompleted)
	if err != nil {
		return Summary{}, fmt.Errorf("list completed photos: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(ids)}
	)

	var g errgroup.Group
	g.SetLimit(w.workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := w.rematcher.Rematch(ctx, id)

			mu.Lock()
			switch {
			case err == nil:
				summary.Rematched++
			case errors.Is(err, domain.ErrAlreadyProcessing), errors.Is(err, domain.ErrInvalidStateTransition):
				summary.Skipped++
			default:
				summary.Failed++
				w.logger.Warn("rematch failed", "photo_id", id, "error", err)
			}
			mu.Unlock()

			if progress != nil {
				progress(len(ids))
			}
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}
