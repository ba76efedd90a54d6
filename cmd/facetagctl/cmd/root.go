// Package cmd holds the facetagctl admin commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:   "facetagctl",
	Short: "Admin tool for a FaceTag deployment",
	Long: `facetagctl runs maintenance tasks against a FaceTag deployment:
schema migrations, bulk rematching of photos against the current profile
registry, and secret generation.

Settings are read from the same environment variables as the API server.
A .env file in the working directory is loaded when present.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
}

func initConfig() {
	// .env is optional
	_ = godotenv.Load()

	// the flag wins over the environment for every command, config.Load included
	if databaseURL != "" {
		_ = os.Setenv("DATABASE_URL", databaseURL)
	} else {
		databaseURL = os.Getenv("DATABASE_URL")
	}
}
