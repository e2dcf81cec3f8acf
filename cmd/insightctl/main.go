package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"research-backend/internal/bootstrap"
	"research-backend/internal/shared/config"
)

var rootCmd = &cobra.Command{
	Use:           "insightctl",
	Short:         "Operate the research insight pipeline",
	Long:          "Classify research documents, run insight extraction and inspect the tag vocabulary from the command line.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// buildApp wires the same dependencies as the API from environment config.
func buildApp(ctx context.Context) (*bootstrap.App, error) {
	app, err := bootstrap.Build(ctx, config.Load())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
