package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facetag/internal/app"
	"github.com/saturnino-fabrica-de-software/facetag/internal/config"
	"github.com/saturnino-fabrica-de-software/facetag/internal/face"
	"github.com/saturnino-fabrica-de-software/facetag/internal/service"
	"github.com/saturnino-fabrica-de-software/facetag/internal/worker"
)

var rematchCmd = &cobra.Command{
	Use:   "rematch [PHOTO_ID]",
	Short: "Re-run matching for photos against the current profiles",
	Long: `Re-run matching for one photo, or for every completed photo with --all.

Completed photos keep their detected faces and are only matched again.
Failed photos are detected from scratch.

Examples:
  # One photo
  facetagctl rematch 3f1c9a5e-2b7d-4e0a-9c61-0d8f5b2a7e44

  # Every completed photo, 8 passes at a time
  facetagctl rematch --all --workers 8`,
	Args: func(cmd *cobra.Command, args []string) error {
		all := mustGetBool(cmd, "all")
		switch {
		case all && len(args) > 0:
			return errors.New("pass either a photo id or --all, not both")
		case !all && len(args) != 1:
			return errors.New("a photo id or --all is required")
		}
		return nil
	},
	RunE: runRematch,
}

func init() {
	rootCmd.AddCommand(rematchCmd)

	rematchCmd.Flags().Bool("all", false, "Rematch every completed photo")
	rematchCmd.Flags().Int("workers", 0, "Concurrent passes for --all (defaults to REMATCH_WORKERS)")
}

func runRematch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(cfg.Environment)

	users, photos, closeStores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	images, err := app.OpenImageStore(ctx, cfg)
	if err != nil {
		return err
	}

	source, err := face.NewEmbeddingSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding source: %w", err)
	}
	defer func() { _ = source.Close() }()

	matcher, err := app.NewMatcher(cfg)
	if err != nil {
		return err
	}
	orchestrator := service.NewOrchestrator(photos, users, images, source, matcher, logger, app.OrchestratorConfig(cfg))

	if len(args) == 1 {
		photoID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid photo id %q: %w", args[0], err)
		}

		outcome, err := orchestrator.Rematch(ctx, photoID)
		if err != nil {
			return err
		}
		if outcome.ErrorCode != "" {
			cmd.Printf("photo %s: %s (%s: %s)\n", outcome.PhotoID, outcome.Status, outcome.ErrorCode, outcome.ErrorReason)
			return nil
		}
		cmd.Printf("photo %s: %s, %d faces, %d matches\n", outcome.PhotoID, outcome.Status, len(outcome.Faces), outcome.TotalMatches)
		return nil
	}

	workers := mustGetInt(cmd, "workers")
	if workers <= 0 {
		workers = cfg.RematchWorkers
	}
	rematcher := worker.NewRematchWorker(orchestrator, photos, logger, workers)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Rematching"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	var sized sync.Once

	start := time.Now()
	summary, err := rematcher.RematchAll(ctx, func(total int) {
		sized.Do(func() { bar.ChangeMax(total) })
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Println()

	cmd.Printf("rematched %d of %d photos (%d skipped, %d failed) in %s\n",
		summary.Rematched, summary.Total, summary.Skipped, summary.Failed, time.Since(start).Round(time.Millisecond))
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d photos failed to rematch", summary.Failed)
	}
	return nil
}
